package tui

import (
	"errors"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

var commandAliases = map[string]string{
	"q":      "quit",
	"exit":   "quit",
	"h":      "help",
	"s":      "search",
	"o":      "open",
	"chat":   "open",
	"logout": "signout",
	"notif":  "notifications",
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if alias, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = alias
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

var errPollSyntax = errors.New(`usage: poll question | option | option [| ...]`)

// parsePoll splits "question | a | b" into a question and its options.
func parsePoll(args string) (string, []string, error) {
	var parts []string
	for _, p := range strings.Split(args, "|") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 3 {
		return "", nil, errPollSyntax
	}
	return parts[0], parts[1:], nil
}
