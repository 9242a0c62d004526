package signalrclient

import (
	"github.com/endorses/upstreamctl/internal/pkg/upstream"
)

// signalRResource is the subset of Microsoft.SignalRService/signalR we read
type signalRResource struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name,omitempty"`
	Type       string             `json:"type,omitempty"`
	Properties resourceProperties `json:"properties"`
}

type resourceProperties struct {
	ProvisioningState string        `json:"provisioningState,omitempty"`
	Upstream          *wireUpstream `json:"upstream,omitempty"`
}

type wireUpstream struct {
	Templates []wireTemplate `json:"templates"`
}

type wireTemplate struct {
	URLTemplate     string    `json:"urlTemplate"`
	HubPattern      *string   `json:"hubPattern,omitempty"`
	EventPattern    *string   `json:"eventPattern,omitempty"`
	CategoryPattern *string   `json:"categoryPattern,omitempty"`
	Auth            *wireAuth `json:"auth,omitempty"`
}

type wireAuth struct {
	Type            string               `json:"type,omitempty"`
	ManagedIdentity *wireManagedIdentity `json:"managedIdentity,omitempty"`
}

type wireManagedIdentity struct {
	Resource *string `json:"resource,omitempty"`
}

// upstreamPatch replaces properties.upstream as a whole
type upstreamPatch struct {
	Properties struct {
		Upstream wireUpstream `json:"upstream"`
	} `json:"properties"`
}

// asyncOperation is the body returned by an Azure-AsyncOperation URL
type asyncOperation struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newUpstreamPatch(upstreams []upstream.Upstream) upstreamPatch {
	var p upstreamPatch
	p.Properties.Upstream.Templates = toWire(upstreams)
	return p
}

// toWire never returns nil so an empty set is sent as [] and clears all rules
func toWire(upstreams []upstream.Upstream) []wireTemplate {
	templates := make([]wireTemplate, 0, len(upstreams))
	for _, u := range upstreams {
		t := wireTemplate{
			URLTemplate:     u.URLTemplate,
			HubPattern:      u.HubPattern,
			EventPattern:    u.EventPattern,
			CategoryPattern: u.CategoryPattern,
		}
		if u.Auth != nil {
			t.Auth = &wireAuth{Type: u.Auth.AuthType}
			if u.Auth.ManagedIdentity != nil && *u.Auth.ManagedIdentity != "" {
				t.Auth.ManagedIdentity = &wireManagedIdentity{Resource: u.Auth.ManagedIdentity}
			}
		}
		templates = append(templates, t)
	}
	return templates
}

func fromWire(templates []wireTemplate) []upstream.Upstream {
	upstreams := make([]upstream.Upstream, 0, len(templates))
	for _, t := range templates {
		u := upstream.Upstream{
			URLTemplate:     t.URLTemplate,
			HubPattern:      t.HubPattern,
			EventPattern:    t.EventPattern,
			CategoryPattern: t.CategoryPattern,
		}
		if t.Auth != nil {
			// identity is always set, as the parser does for managed-identity
			var identity string
			if t.Auth.ManagedIdentity != nil {
				identity = upstream.StringValue(t.Auth.ManagedIdentity.Resource)
			}
			auth := &upstream.UpstreamAuth{AuthType: t.Auth.Type, ManagedIdentity: &identity}
			if auth.AuthType == "" {
				auth.AuthType = upstream.AuthTypeNone
			}
			u.Auth = auth
		}
		upstreams = append(upstreams, u)
	}
	return upstreams
}

func (r *signalRResource) upstreams() []upstream.Upstream {
	if r.Properties.Upstream == nil {
		return []upstream.Upstream{}
	}
	return fromWire(r.Properties.Upstream.Templates)
}
