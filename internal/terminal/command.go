package terminal

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies what a line of input asks for.
type Kind int

const (
	KindEmpty Kind = iota
	KindSearch
	KindFollowup
	KindView
	KindHistory
	KindClear
	KindLogin
	KindLogout
	KindCredits
	KindCancel
	KindHelp
	KindExit
)

// Command is a parsed line of input.
type Command struct {
	Kind Kind
	// Query is the search text for KindSearch and KindFollowup.
	Query string
	// Target is a record reference for KindView and targeted follow-ups,
	// or the email for KindLogin.
	Target string
}

// ErrUnknownCommand is returned for unrecognised slash commands.
var ErrUnknownCommand = errors.New("unknown command, type /help for a list")

// Usage lists the REPL commands.
const Usage = `Type a question to search the web.
  /ask <question>             follow up on the search shown last
  /followup <id> <question>   follow up on a specific search
  /view <id>                  show a search from history
  /history                    list past searches
  /clear                      delete the search history
  /login <email>              sign in
  /logout                     sign out
  /credits                    show remaining credits
  /cancel                     stop the running search
  /exit                       quit`

// ParseCommand interprets one line of input. Anything that is not a slash
// command is a primary search.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: KindEmpty}, nil
	}

	switch strings.ToLower(line) {
	case "exit", "quit":
		return Command{Kind: KindExit}, nil
	}

	if !strings.HasPrefix(line, "/") {
		return Command{Kind: KindSearch, Query: line}, nil
	}

	name, rest := splitWord(line[1:])
	switch strings.ToLower(name) {
	case "exit", "quit", "q":
		return Command{Kind: KindExit}, nil
	case "help", "?":
		return Command{Kind: KindHelp}, nil
	case "history":
		return Command{Kind: KindHistory}, nil
	case "clear":
		return Command{Kind: KindClear}, nil
	case "logout":
		return Command{Kind: KindLogout}, nil
	case "credits":
		return Command{Kind: KindCredits}, nil
	case "cancel":
		return Command{Kind: KindCancel}, nil
	case "search":
		if rest == "" {
			return Command{}, errors.New("usage: /search <question>")
		}
		return Command{Kind: KindSearch, Query: rest}, nil
	case "ask":
		if rest == "" {
			return Command{}, errors.New("usage: /ask <question>")
		}
		return Command{Kind: KindFollowup, Query: rest}, nil
	case "followup", "f":
		target, query := splitWord(rest)
		if target == "" || query == "" {
			return Command{}, errors.New("usage: /followup <id> <question>")
		}
		return Command{Kind: KindFollowup, Target: target, Query: query}, nil
	case "view":
		target, extra := splitWord(rest)
		if target == "" || extra != "" {
			return Command{}, errors.New("usage: /view <id>")
		}
		return Command{Kind: KindView, Target: target}, nil
	case "login":
		email, extra := splitWord(rest)
		if email == "" || extra != "" {
			return Command{}, errors.New("usage: /login <email>")
		}
		return Command{Kind: KindLogin, Target: email}, nil
	}

	return Command{}, errors.Wrapf(ErrUnknownCommand, "/%s", name)
}

// splitWord splits s into its first word and the trimmed remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}
