package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplates(t *testing.T) {
	t.Run("two entries in input order", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com,hub-pattern=chat;url-template=http://b.com,category-pattern=conn")
		require.Len(t, got, 2)

		assert.Equal(t, "http://a.com", got[0].URLTemplate)
		require.NotNil(t, got[0].HubPattern)
		assert.Equal(t, "chat", *got[0].HubPattern)
		assert.Nil(t, got[0].CategoryPattern)
		assert.Nil(t, got[0].EventPattern)
		assert.Nil(t, got[0].Auth)

		assert.Equal(t, "http://b.com", got[1].URLTemplate)
		require.NotNil(t, got[1].CategoryPattern)
		assert.Equal(t, "conn", *got[1].CategoryPattern)
		assert.Nil(t, got[1].HubPattern)
	})

	t.Run("entry without url-template is dropped", func(t *testing.T) {
		got := ParseTemplates("hub-pattern=chat")
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("empty managed identity resolves to None", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com,managed-identity=")
		require.Len(t, got, 1)
		require.NotNil(t, got[0].Auth)
		assert.Equal(t, AuthTypeNone, got[0].Auth.AuthType)
		require.NotNil(t, got[0].Auth.ManagedIdentity)
		assert.Equal(t, "", *got[0].Auth.ManagedIdentity)
	})

	t.Run("managed identity resource", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com,managed-identity=/subscriptions/x/mi")
		require.Len(t, got, 1)
		require.NotNil(t, got[0].Auth)
		assert.Equal(t, AuthTypeManagedIdentity, got[0].Auth.AuthType)
		assert.Equal(t, "/subscriptions/x/mi", StringValue(got[0].Auth.ManagedIdentity))
	})

	t.Run("pair without equals is ignored", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com,garbage")
		require.Len(t, got, 1)
		assert.Equal(t, Upstream{URLTemplate: "http://a.com"}, got[0])
	})

	t.Run("whitespace is trimmed", func(t *testing.T) {
		got := ParseTemplates(" url-template = http://a.com ")
		require.Len(t, got, 1)
		assert.Equal(t, "http://a.com", got[0].URLTemplate)
	})

	t.Run("value keeps everything after the first equals", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com/api?code=abc==")
		require.Len(t, got, 1)
		assert.Equal(t, "http://a.com/api?code=abc==", got[0].URLTemplate)
	})

	t.Run("placeholders are passed through", func(t *testing.T) {
		got := ParseTemplates("url-template=http://host/{hub}/api/{category}/{event}")
		require.Len(t, got, 1)
		assert.Equal(t, "http://host/{hub}/api/{category}/{event}", got[0].URLTemplate)
	})

	t.Run("empty segments produce no phantom entries", func(t *testing.T) {
		got := ParseTemplates(";;url-template=http://a.com,,hub-pattern=chat;;;")
		require.Len(t, got, 1)
		assert.Equal(t, "chat", StringValue(got[0].HubPattern))
	})

	t.Run("unknown keys are ignored", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com,auth-type=ManagedIdentity,Hub-Pattern=chat")
		require.Len(t, got, 1)
		assert.Equal(t, Upstream{URLTemplate: "http://a.com"}, got[0])
	})

	t.Run("empty url-template drops the entry", func(t *testing.T) {
		got := ParseTemplates("url-template= ,hub-pattern=chat;url-template=http://b.com")
		require.Len(t, got, 1)
		assert.Equal(t, "http://b.com", got[0].URLTemplate)
	})

	t.Run("later key wins within an entry", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com,url-template=http://b.com,managed-identity=mi,managed-identity=")
		require.Len(t, got, 1)
		assert.Equal(t, "http://b.com", got[0].URLTemplate)
		assert.Equal(t, AuthTypeNone, got[0].Auth.AuthType)
	})

	t.Run("duplicate entries are kept", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com;url-template=http://a.com")
		assert.Len(t, got, 2)
	})

	t.Run("empty pattern value is present", func(t *testing.T) {
		got := ParseTemplates("url-template=http://a.com,event-pattern=")
		require.Len(t, got, 1)
		require.NotNil(t, got[0].EventPattern)
		assert.Equal(t, "", *got[0].EventPattern)
	})
}

func TestParseTemplates_Garbage(t *testing.T) {
	inputs := []string{
		"",
		";",
		",,,",
		"===",
		"=http://a.com",
		"url-template",
		" ; , = ; ",
		"\x00\xff;url-template",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			assert.NotPanics(t, func() {
				got := ParseTemplates(in)
				assert.Empty(t, got)
			})
		})
	}
}

func TestParseTemplates_Idempotent(t *testing.T) {
	in := "url-template=http://a.com,hub-pattern=chat,managed-identity=mi;url-template=http://b.com,event-pattern=*"
	first := ParseTemplates(in)
	second := ParseTemplates(in)
	assert.Equal(t, first, second)

	// Results must not share mutable state
	*first[0].HubPattern = "changed"
	assert.Equal(t, "chat", *second[0].HubPattern)
}

func TestFormatTemplates(t *testing.T) {
	upstreams := []Upstream{
		{
			URLTemplate:     "http://a.com/{hub}",
			HubPattern:      StringPtr("chat"),
			EventPattern:    StringPtr("connect"),
			CategoryPattern: StringPtr("connections"),
			Auth:            NewManagedIdentityAuth("/subscriptions/x/mi"),
		},
		{
			URLTemplate: "http://b.com",
			Auth:        NewManagedIdentityAuth(""),
		},
	}

	s := FormatTemplates(upstreams)
	assert.Equal(t,
		"url-template=http://a.com/{hub},hub-pattern=chat,event-pattern=connect,category-pattern=connections,managed-identity=/subscriptions/x/mi;url-template=http://b.com,managed-identity=",
		s)
	assert.Equal(t, upstreams, ParseTemplates(s))
}

func TestFormatTemplates_AuthWithoutIdentity(t *testing.T) {
	upstreams := []Upstream{
		{URLTemplate: "http://a.com", Auth: &UpstreamAuth{AuthType: AuthTypeNone}},
	}

	s := FormatTemplates(upstreams)
	assert.Equal(t, "url-template=http://a.com,managed-identity=", s)

	parsed := ParseTemplates(s)
	require.Len(t, parsed, 1)
	require.NotNil(t, parsed[0].Auth)
	assert.Equal(t, AuthTypeNone, parsed[0].Auth.AuthType)
}

func TestFormatTemplates_Empty(t *testing.T) {
	assert.Equal(t, "", FormatTemplates(nil))
	assert.Empty(t, ParseTemplates(FormatTemplates(nil)))
}
