// Package commands provides prefix-command parsing and dispatch. There is
// exactly one dispatch table mapping command name to handler; every handler
// reads and writes the shared operating mode through its handle rather than
// a captured copy.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Command is a parsed prefix command.
type Command struct {
	Name       string
	Subcommand string
	Args       []string
	RawText    string
}

// ErrNotACommand is returned by Parse when the message does not start with
// the command prefix. Callers use errors.Is to distinguish this expected
// case from real parse errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// Handler handles one command on behalf of senderID and returns the reply
// text.
type Handler func(ctx context.Context, cmd *Command, senderID string) (string, error)

// Router routes parsed commands to handlers.
type Router struct {
	handlers map[string]Handler
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register registers a handler under a command key ("name" or
// "name.subcommand").
func (r *Router) Register(command string, handler Handler) {
	r.handlers[command] = handler
}

// Parse splits text into a Command. The prefix is passed per call because it
// is a runtime-configurable operating-mode field.
func (r *Router) Parse(prefix, text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return nil, ErrNotACommand
	}

	text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := &Command{
		Name:    strings.ToLower(parts[0]),
		Args:    []string{},
		RawText: text,
	}

	rest := parts[1:]
	if len(rest) > 0 && r.hasSubcommand(cmd.Name, strings.ToLower(rest[0])) {
		cmd.Subcommand = strings.ToLower(rest[0])
		rest = rest[1:]
	}
	cmd.Args = append(cmd.Args, rest...)
	return cmd, nil
}

// Route parses text and invokes the matching handler.
func (r *Router) Route(ctx context.Context, prefix, text, senderID string) (string, error) {
	cmd, err := r.Parse(prefix, text)
	if err != nil {
		return "", err
	}

	key := cmd.Name
	if cmd.Subcommand != "" {
		key = cmd.Name + "." + cmd.Subcommand
	}
	handler, ok := r.handlers[key]
	if !ok {
		handler, ok = r.handlers[cmd.Name]
		if !ok {
			return "", fmt.Errorf("unknown command: %s", key)
		}
	}
	return handler(ctx, cmd, senderID)
}

// hasSubcommand reports whether a "name.sub" handler is registered, so Parse
// only consumes a subcommand token when one actually exists.
func (r *Router) hasSubcommand(name, sub string) bool {
	_, ok := r.handlers[name+"."+sub]
	return ok
}
