package commands

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	r := NewRouter("kagemusha")

	tests := []struct {
		name     string
		text     string
		wantName string
		wantArgs []string
		wantErr  bool
		notACmd  bool
	}{
		{
			name:     "simple command",
			text:     "/help",
			wantName: "help",
			wantArgs: []string{},
		},
		{
			name:     "command with args",
			text:     "/imitate @alice are you coming?",
			wantName: "imitate",
			wantArgs: []string{"@alice", "are", "you", "coming?"},
		},
		{
			name:     "addressed to this bot",
			text:     "/imitate@kagemusha @alice",
			wantName: "imitate",
			wantArgs: []string{"@alice"},
		},
		{
			name:     "addressed to this bot, different case",
			text:     "/help@Kagemusha",
			wantName: "help",
			wantArgs: []string{},
		},
		{
			name:    "addressed to another bot",
			text:    "/imitate@otherbot @alice",
			notACmd: true,
		},
		{
			name:    "plain message",
			text:    "just chatting here",
			notACmd: true,
		},
		{
			name:    "bare slash",
			text:    "/",
			wantErr: true,
		},
		{
			name:     "surrounding whitespace",
			text:     "  /imitate_profiles  ",
			wantName: "imitate_profiles",
			wantArgs: []string{},
		},
		{
			name:     "uppercase command is normalized",
			text:     "/HELP",
			wantName: "help",
			wantArgs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := r.Parse(tt.text)
			if tt.notACmd {
				if !errors.Is(err, ErrNotACommand) {
					t.Fatalf("expected ErrNotACommand, got %v", err)
				}
				return
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if cmd.Name != tt.wantName {
				t.Errorf("Name: got %q, want %q", cmd.Name, tt.wantName)
			}
			if len(cmd.Args) != len(tt.wantArgs) {
				t.Fatalf("Args: got %v, want %v", cmd.Args, tt.wantArgs)
			}
			for i := range cmd.Args {
				if cmd.Args[i] != tt.wantArgs[i] {
					t.Errorf("Args[%d]: got %q, want %q", i, cmd.Args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestTail(t *testing.T) {
	cmd := &Command{Args: []string{"@alice", "@bob", "weekend", "plans"}}

	if got := cmd.Tail(2); got != "weekend plans" {
		t.Errorf("Tail(2): got %q", got)
	}
	if got := cmd.Tail(4); got != "" {
		t.Errorf("Tail past end: got %q", got)
	}
	if got := cmd.Tail(0); got != "@alice @bob weekend plans" {
		t.Errorf("Tail(0): got %q", got)
	}
}

func TestIsCommand(t *testing.T) {
	if !IsCommand("  /help") {
		t.Error("leading whitespace should not hide a command")
	}
	if IsCommand("hello /world") {
		t.Error("mid-text slash is not a command")
	}
}
