package app

import "testing"

func TestShouldCapture(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"ordinary message", "see you all tomorrow at nine", true},
		{"slash command", "/imitate @alice", false},
		{"bang prefix", "!roll 2d6", false},
		{"dot prefix", ".hidden note", false},
		{"http link", "check http://example.org out", false},
		{"https link", "https://example.org/article", false},
		{"uppercase link", "look at HTTPS://example.org", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"leading whitespace before command", "  /help", false},
		{"word containing slash mid-text", "either/or works for me", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldCapture(tt.text); got != tt.want {
				t.Errorf("shouldCapture(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestStripMentions(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		mentions []string
		want     string
	}{
		{
			"localpart form removed",
			"@alice what do you think about this plan",
			[]string{"@alice:example.org"},
			"what do you think about this plan",
		},
		{
			"full matrix id removed",
			"hey @alice:example.org are you coming",
			[]string{"@alice:example.org"},
			"hey are you coming",
		},
		{
			"multiple mentions",
			"@alice and @bob should settle this",
			[]string{"@alice:example.org", "@bob:example.org"},
			"and should settle this",
		},
		{
			"mention only leaves empty seed",
			"@alice",
			[]string{"@alice:example.org"},
			"",
		},
		{
			"no mentions leaves text untouched",
			"just a regular line",
			nil,
			"just a regular line",
		},
		{
			"whitespace collapsed after removal",
			"so  @alice  what now",
			[]string{"@alice:example.org"},
			"so what now",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripMentions(tt.text, tt.mentions); got != tt.want {
				t.Errorf("stripMentions(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestLocalpart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@alice:example.org", "alice"},
		{"@bot:matrix.org", "bot"},
		{"plainname", "plainname"},
		{"@nocolon", "nocolon"},
	}
	for _, tt := range tests {
		if got := localpart(tt.in); got != tt.want {
			t.Errorf("localpart(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
