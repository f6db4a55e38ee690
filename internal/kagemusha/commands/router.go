// Package commands provides command parsing and routing for Kagemusha
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/event"
)

// Command represents a parsed command
type Command struct {
	Name    string
	Args    []string
	RawText string
}

// ErrNotACommand is returned by Parse when the message does not start with a
// slash. Callers should use errors.Is to distinguish this expected case from
// real errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// Handler is a function that handles a command
type Handler func(ctx context.Context, cmd *Command, evt *event.Event) (string, error)

// Router routes commands to handlers
type Router struct {
	handlers map[string]Handler
	botName  string
}

// NewRouter creates a new command router. botName is stripped when a command
// is addressed explicitly, e.g. "/imitate@kagemusha".
func NewRouter(botName string) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		botName:  strings.TrimPrefix(botName, "@"),
	}
}

// Register registers a command handler
func (r *Router) Register(command string, handler Handler) {
	r.handlers[command] = handler
}

// IsCommand reports whether text looks like a command invocation.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Parse parses a message into a command
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "/") {
		return nil, ErrNotACommand
	}

	text = strings.TrimSpace(strings.TrimPrefix(text, "/"))
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	name := parts[0]
	// "/imitate@kagemusha" addresses this bot explicitly.
	if at := strings.Index(name, "@"); at >= 0 {
		target := name[at+1:]
		if r.botName != "" && !strings.EqualFold(target, r.botName) {
			return nil, ErrNotACommand
		}
		name = name[:at]
	}
	if name == "" {
		return nil, fmt.Errorf("empty command")
	}

	return &Command{
		Name:    strings.ToLower(name),
		Args:    parts[1:],
		RawText: text,
	}, nil
}

// Route parses and routes a command to its handler
func (r *Router) Route(ctx context.Context, text string, evt *event.Event) (string, error) {
	cmd, err := r.Parse(text)
	if err != nil {
		return "", err
	}

	handler, ok := r.handlers[cmd.Name]
	if !ok {
		return "", fmt.Errorf("unknown command: %s", cmd.Name)
	}

	return handler(ctx, cmd, evt)
}

// GetArg returns an argument by index
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}

// Tail returns the arguments from index onward joined back into free text,
// used for seeds and dialogue topics.
func (c *Command) Tail(index int) string {
	if index < 0 || index >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[index:], " ")
}
