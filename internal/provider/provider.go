// Package provider defines the closed set of AI providers the proxy binary
// can authenticate against, together with the per-provider constants the rest
// of the tool needs: the login flag passed to the binary, the optional local
// OAuth callback port, and the conventions its credential files follow.
//
// Adding a provider is a one-row change to the table below.
package provider

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ID identifies a provider.
type ID string

const (
	Gemini ID = "gemini"
	Codex  ID = "codex"
	Claude ID = "claude"
	Qwen   ID = "qwen"
	IFlow  ID = "iflow"
)

// Provider holds the static constants for one provider.
type Provider struct {
	ID   ID
	Name string

	// LoginFlag is passed to the proxy binary to start this provider's
	// OAuth flow.
	LoginFlag string

	// CallbackPort is the fixed local port the provider's OAuth flow
	// listens on. Zero means the provider uses a device-code flow and has
	// no local callback server at all; preflight port clearing is skipped
	// for those.
	CallbackPort int

	// FilePrefixes are the known credential file name prefixes. May be
	// empty: some providers write files named after the account with no
	// recognizable prefix, and are classified by TypeValues instead.
	FilePrefixes []string

	// TypeValues are the accepted values of the credential file's "type"
	// field.
	TypeValues []string
}

var table = []Provider{
	{
		ID:           Gemini,
		Name:         "Gemini",
		LoginFlag:    "--login",
		CallbackPort: 8085,
		TypeValues:   []string{"gemini"},
	},
	{
		ID:           Codex,
		Name:         "Codex",
		LoginFlag:    "--codex-login",
		CallbackPort: 1455,
		FilePrefixes: []string{"codex-"},
		TypeValues:   []string{"codex"},
	},
	{
		ID:           Claude,
		Name:         "Claude",
		LoginFlag:    "--claude-login",
		CallbackPort: 54545,
		FilePrefixes: []string{"claude-"},
		TypeValues:   []string{"claude"},
	},
	{
		ID:           Qwen,
		Name:         "Qwen",
		LoginFlag:    "--qwen-login",
		FilePrefixes: []string{"qwen-"},
		TypeValues:   []string{"qwen"},
	},
	{
		ID:           IFlow,
		Name:         "iFlow",
		LoginFlag:    "--iflow-login",
		FilePrefixes: []string{"iflow-"},
		TypeValues:   []string{"iflow"},
	},
}

// Lookup returns the provider for id, if it is one of the known providers.
func Lookup(id string) (Provider, bool) {
	for _, p := range table {
		if p.ID == ID(strings.ToLower(strings.TrimSpace(id))) {
			return p, true
		}
	}
	return Provider{}, false
}

// All returns the provider table in its fixed declaration order.
func All() []Provider {
	out := make([]Provider, len(table))
	copy(out, table)
	return out
}

// UsesCallback reports whether this provider's flow runs a local callback
// server. Device-code providers return false.
func (p Provider) UsesCallback() bool {
	return p.CallbackPort != 0
}

// MatchesFile reports whether a credential file belongs to this provider.
// File name prefixes are the fast path; the JSON "type" field is the
// required fallback for providers whose files carry no prefix.
func (p Provider) MatchesFile(name string, data []byte) bool {
	if !strings.HasSuffix(name, ".json") {
		return false
	}
	for _, prefix := range p.FilePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	typ := gjson.GetBytes(data, "type").String()
	for _, v := range p.TypeValues {
		if typ == v {
			return true
		}
	}
	return false
}
