package provider

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"gemini", true},
		{"codex", true},
		{"claude", true},
		{"qwen", true},
		{"iflow", true},
		{"Claude", true},
		{" gemini ", true},
		{"openai", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if _, ok := Lookup(tt.id); ok != tt.want {
				t.Errorf("Lookup(%q) ok = %v, want %v", tt.id, ok, tt.want)
			}
		})
	}
}

func TestCallbackPorts(t *testing.T) {
	tests := []struct {
		id       ID
		callback bool
		port     int
	}{
		{Gemini, true, 8085},
		{Codex, true, 1455},
		{Claude, true, 54545},
		{Qwen, false, 0},
		{IFlow, false, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			p, ok := Lookup(string(tt.id))
			if !ok {
				t.Fatalf("Lookup(%q) missing", tt.id)
			}
			if p.UsesCallback() != tt.callback {
				t.Errorf("UsesCallback() = %v, want %v", p.UsesCallback(), tt.callback)
			}
			if p.CallbackPort != tt.port {
				t.Errorf("CallbackPort = %d, want %d", p.CallbackPort, tt.port)
			}
		})
	}
}

func TestMatchesFile(t *testing.T) {
	claude, _ := Lookup("claude")
	gemini, _ := Lookup("gemini")

	tests := []struct {
		name     string
		provider Provider
		file     string
		data     string
		want     bool
	}{
		{"prefix_match", claude, "claude-user@example.com.json", `{}`, true},
		{"type_fallback", gemini, "user@example.com.json", `{"type":"gemini"}`, true},
		{"no_prefix_no_type", gemini, "user@example.com.json", `{}`, false},
		{"wrong_type", claude, "token.json", `{"type":"gemini"}`, false},
		{"type_without_prefix", claude, "anything.json", `{"type":"claude"}`, true},
		{"not_json_file", claude, "claude-user.txt", `{"type":"claude"}`, false},
		{"malformed_json_with_prefix", claude, "claude-x.json", `not json`, true},
		{"malformed_json_no_prefix", gemini, "x.json", `not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.provider.MatchesFile(tt.file, []byte(tt.data))
			if got != tt.want {
				t.Errorf("MatchesFile(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestAllIsClosedTable(t *testing.T) {
	all := All()
	if len(all) != 5 {
		t.Fatalf("All() returned %d providers, want 5", len(all))
	}
	seen := map[ID]bool{}
	for _, p := range all {
		if seen[p.ID] {
			t.Errorf("duplicate provider %s", p.ID)
		}
		seen[p.ID] = true
		if p.LoginFlag == "" {
			t.Errorf("provider %s has no login flag", p.ID)
		}
		if len(p.TypeValues) == 0 {
			t.Errorf("provider %s has no type values", p.ID)
		}
	}
}
