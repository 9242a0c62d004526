// Package upstream provides the upstream template grammar and the update
// operation that replaces the upstream configuration of a SignalR service.
// It is used by the CLI commands and implemented against the ARM API by the
// signalrclient package.
package upstream

// Auth types understood by the SignalR service
const (
	AuthTypeManagedIdentity = "ManagedIdentity"
	AuthTypeNone            = "None"
)

// Upstream is one upstream routing rule. Optional fields are nil when the
// template did not set them, so "absent" and "present but empty" stay distinct.
type Upstream struct {
	// URLTemplate may contain {hub}, {category} and {event} placeholders.
	URLTemplate     string        `json:"urlTemplate" yaml:"urlTemplate"`
	HubPattern      *string       `json:"hubPattern,omitempty" yaml:"hubPattern,omitempty"`
	EventPattern    *string       `json:"eventPattern,omitempty" yaml:"eventPattern,omitempty"`
	CategoryPattern *string       `json:"categoryPattern,omitempty" yaml:"categoryPattern,omitempty"`
	Auth            *UpstreamAuth `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// UpstreamAuth is the authentication the service uses when calling the upstream URL
type UpstreamAuth struct {
	AuthType        string  `json:"authType" yaml:"authType"`
	ManagedIdentity *string `json:"managedIdentity,omitempty" yaml:"managedIdentity,omitempty"`
}

// NewManagedIdentityAuth builds the auth block for a managed-identity value.
// An empty identity resolves to AuthTypeNone.
func NewManagedIdentityAuth(identity string) *UpstreamAuth {
	authType := AuthTypeManagedIdentity
	if identity == "" {
		authType = AuthTypeNone
	}
	return &UpstreamAuth{
		AuthType:        authType,
		ManagedIdentity: &identity,
	}
}

// Valid reports whether the upstream would be kept by the parser
func (u Upstream) Valid() bool {
	return u.URLTemplate != ""
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// StringValue returns the value behind p, or "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
