// Package options holds the Azure options shared by every upstream command:
// how to authenticate against the management API and how to retry calls.
package options

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AuthMethod selects how requests to the management API are authenticated
type AuthMethod string

const (
	// AuthMethodCredential sends a bearer token for the selected tenant
	AuthMethodCredential AuthMethod = "credential"
	// AuthMethodNone sends no Authorization header (local emulators)
	AuthMethodNone AuthMethod = "none"
)

// ParseAuthMethod parses an auth method name. Empty means AuthMethodCredential.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch AuthMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", AuthMethodCredential:
		return AuthMethodCredential, nil
	case AuthMethodNone:
		return AuthMethodNone, nil
	default:
		return "", fmt.Errorf("unknown auth method %q (valid: %s, %s)", s, AuthMethodCredential, AuthMethodNone)
	}
}

// RetryMode selects the backoff between retries
type RetryMode string

const (
	RetryModeFixed       RetryMode = "fixed"
	RetryModeExponential RetryMode = "exponential"
)

// ParseRetryMode parses a retry mode name. Empty means RetryModeExponential.
func ParseRetryMode(s string) (RetryMode, error) {
	switch RetryMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RetryModeExponential:
		return RetryModeExponential, nil
	case RetryModeFixed:
		return RetryModeFixed, nil
	default:
		return "", fmt.Errorf("unknown retry mode %q (valid: %s, %s)", s, RetryModeFixed, RetryModeExponential)
	}
}

// RetryPolicy controls how the service client retries failed requests
type RetryPolicy struct {
	MaxRetries     int           `json:"maxRetries" yaml:"max_retries"`
	Delay          time.Duration `json:"delay" yaml:"delay"`
	MaxDelay       time.Duration `json:"maxDelay" yaml:"max_delay"`
	Mode           RetryMode     `json:"mode" yaml:"mode"`
	NetworkTimeout time.Duration `json:"networkTimeout" yaml:"network_timeout"`
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		Delay:          800 * time.Millisecond,
		MaxDelay:       60 * time.Second,
		Mode:           RetryModeExponential,
		NetworkTimeout: 100 * time.Second,
	}
}

// Validate checks that the policy values are usable
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("retry max retries must not be negative (got %d)", p.MaxRetries)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay must not be negative (got %s)", p.Delay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("retry max delay must not be negative (got %s)", p.MaxDelay)
	}
	if p.MaxDelay > 0 && p.Delay > p.MaxDelay {
		return fmt.Errorf("retry delay %s exceeds max delay %s", p.Delay, p.MaxDelay)
	}
	if p.NetworkTimeout < 0 {
		return fmt.Errorf("retry network timeout must not be negative (got %s)", p.NetworkTimeout)
	}
	if _, err := ParseRetryMode(string(p.Mode)); err != nil {
		return err
	}
	return nil
}

// LogValue implements slog.LogValuer
func (p RetryPolicy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("max_retries", p.MaxRetries),
		slog.Duration("delay", p.Delay),
		slog.Duration("max_delay", p.MaxDelay),
		slog.String("mode", string(p.Mode)),
		slog.Duration("network_timeout", p.NetworkTimeout),
	)
}

// Global holds the options inherited by every command in the upstream group
type Global struct {
	Subscription string
	Tenant       string
	AuthMethod   string
	RetryPolicy  *RetryPolicy
}

// LogValue implements slog.LogValuer
func (g Global) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("subscription", g.Subscription),
		slog.String("tenant", g.Tenant),
		slog.String("auth_method", g.AuthMethod),
	}
	if g.RetryPolicy != nil {
		attrs = append(attrs, slog.Any("retry_policy", *g.RetryPolicy))
	}
	return slog.GroupValue(attrs...)
}
