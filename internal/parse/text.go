package parse

import (
	"strings"

	"github.com/and161185/smsrouter/internal/model"
)

// Arg declares one comma-separated argument of a keyword grammar.
type Arg struct {
	Name     string
	Optional bool
}

// Req declares a required argument.
func Req(name string) Arg { return Arg{Name: name} }

// Opt declares an optional argument.
func Opt(name string) Arg { return Arg{Name: name, Optional: true} }

// Keyword builds a grammar for commands of the form
//
//	+word arg1, arg2, ...
//
// The keyword is matched caselessly. Arguments are comma-separated and bound
// to the declared names in order; the argument list ends at the next "+"
// token, which is left unconsumed so that chained commands like
// "+hello +hello" classify as two forms. A missing required argument or a
// surplus argument produces a FormatError naming the command.
func Keyword(word string, args ...Arg) Grammar {
	keyword := "+" + word

	return func(text string) (model.Fields, string, error) {
		tok, rest := nextToken(text)
		if !strings.EqualFold(tok, keyword) {
			return nil, "", ErrNoMatch
		}

		body, remaining := splitCommand(rest)
		values := splitArgs(body)
		if len(values) > len(args) {
			return nil, "", Formatf(
				"The %s command takes at most %d value(s), got %d.",
				keyword, len(args), len(values))
		}

		fields := model.Fields{}
		for i, a := range args {
			if i < len(values) && values[i] != "" {
				fields[a.Name] = values[i]
				continue
			}
			if !a.Optional {
				return nil, "", Formatf(
					"The %s command requires a value for %q.", keyword, a.Name)
			}
		}
		return fields, remaining, nil
	}
}

// Blank builds a grammar matching the empty message. Register it to give
// empty input a kind of its own; otherwise empty input classifies as
// not understood.
func Blank() Grammar {
	return func(text string) (model.Fields, string, error) {
		if strings.TrimSpace(text) != "" {
			return nil, "", ErrNoMatch
		}
		return model.Fields{}, "", nil
	}
}

// nextToken splits off the first whitespace-delimited token.
func nextToken(text string) (string, string) {
	text = strings.TrimSpace(text)
	if i := strings.IndexFunc(text, isSpace); i >= 0 {
		return text[:i], text[i+1:]
	}
	return text, ""
}

// splitCommand consumes tokens up to the next "+" token, which starts the
// following command.
func splitCommand(text string) (body, remaining string) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	for i, f := range fields {
		if strings.HasPrefix(f, "+") {
			return strings.Join(fields[:i], " "), strings.Join(fields[i:], " ")
		}
	}
	return text, ""
}

// splitArgs splits a comma-separated argument list, trimming each value.
// An empty body yields no values.
func splitArgs(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	parts := strings.Split(body, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
