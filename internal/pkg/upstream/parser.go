package upstream

import (
	"strings"
)

// Template grammar delimiters
const (
	entrySeparator = ";"
	pairSeparator  = ","
	keyValueSep    = "="
)

// Recognized template keys
const (
	KeyURLTemplate     = "url-template"
	KeyHubPattern      = "hub-pattern"
	KeyEventPattern    = "event-pattern"
	KeyCategoryPattern = "category-pattern"
	KeyManagedIdentity = "managed-identity"
)

// ParseTemplates parses a template string into upstream records.
//
// The grammar is entry (';' entry)*, entry is pair (',' pair)* and pair is
// key '=' value, split on the first '='. Parsing is permissive: empty
// segments, pairs without '=', unknown keys and entries without a
// url-template are dropped silently. Entry order is preserved.
func ParseTemplates(input string) []Upstream {
	upstreams := make([]Upstream, 0)

	for _, entry := range splitNonEmpty(input, entrySeparator) {
		var b builder
		for _, pair := range splitNonEmpty(entry, pairSeparator) {
			key, value, ok := strings.Cut(pair, keyValueSep)
			if !ok {
				continue
			}
			b.set(strings.TrimSpace(key), strings.TrimSpace(value))
		}

		if u, ok := b.build(); ok {
			upstreams = append(upstreams, u)
		}
	}

	return upstreams
}

// builder accumulates one entry's fields before the record is produced
type builder struct {
	urlTemplate     string
	hubPattern      *string
	eventPattern    *string
	categoryPattern *string
	auth            *UpstreamAuth
}

func (b *builder) set(key, value string) {
	switch key {
	case KeyURLTemplate:
		b.urlTemplate = value
	case KeyHubPattern:
		b.hubPattern = StringPtr(value)
	case KeyEventPattern:
		b.eventPattern = StringPtr(value)
	case KeyCategoryPattern:
		b.categoryPattern = StringPtr(value)
	case KeyManagedIdentity:
		b.auth = NewManagedIdentityAuth(value)
	default:
		// unknown keys are ignored
	}
}

func (b *builder) build() (Upstream, bool) {
	u := Upstream{
		URLTemplate:     b.urlTemplate,
		HubPattern:      b.hubPattern,
		EventPattern:    b.eventPattern,
		CategoryPattern: b.categoryPattern,
		Auth:            b.auth,
	}
	return u, u.Valid()
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatTemplates renders upstreams back into the template grammar.
// Values containing ';' or ',' cannot be represented and will not
// round-trip through ParseTemplates.
func FormatTemplates(upstreams []Upstream) string {
	entries := make([]string, 0, len(upstreams))
	for _, u := range upstreams {
		pairs := []string{KeyURLTemplate + keyValueSep + u.URLTemplate}
		if u.HubPattern != nil {
			pairs = append(pairs, KeyHubPattern+keyValueSep+*u.HubPattern)
		}
		if u.EventPattern != nil {
			pairs = append(pairs, KeyEventPattern+keyValueSep+*u.EventPattern)
		}
		if u.CategoryPattern != nil {
			pairs = append(pairs, KeyCategoryPattern+keyValueSep+*u.CategoryPattern)
		}
		// An auth block without identity is written as an empty
		// managed-identity, which parses back to AuthTypeNone.
		if u.Auth != nil {
			pairs = append(pairs, KeyManagedIdentity+keyValueSep+StringValue(u.Auth.ManagedIdentity))
		}
		entries = append(entries, strings.Join(pairs, pairSeparator))
	}
	return strings.Join(entries, entrySeparator)
}
