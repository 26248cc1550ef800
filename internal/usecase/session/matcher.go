package session

import (
	"fmt"
	"regexp"
	"strings"
)

// Match is a successful matcher result.
type Match struct {
	Text     string            // matched text
	Captures []string          // positional groups, index 0 is the whole match
	Named    map[string]string // named groups
}

// Get returns a named capture, or "" when absent.
func (m *Match) Get(name string) string {
	if m == nil {
		return ""
	}
	return m.Named[name]
}

// Matcher tests processed message text.
type Matcher interface {
	Match(text string) (*Match, bool)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(text string) (*Match, bool)

func (f MatcherFunc) Match(text string) (*Match, bool) {
	return f(text)
}

type regexpMatcher struct {
	re *regexp.Regexp
}

// Regexp matches text against re.
func Regexp(re *regexp.Regexp) Matcher {
	return regexpMatcher{re: re}
}

// Pattern compiles expr into a matcher.
func Pattern(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", expr, err)
	}
	return Regexp(re), nil
}

// MustPattern is Pattern that panics on a bad expression.
func MustPattern(expr string) Matcher {
	m, err := Pattern(expr)
	if err != nil {
		panic(err)
	}
	return m
}

func (m regexpMatcher) Match(text string) (*Match, bool) {
	groups := m.re.FindStringSubmatch(text)
	if groups == nil {
		return nil, false
	}
	match := &Match{Text: groups[0], Captures: groups, Named: make(map[string]string)}
	for i, name := range m.re.SubexpNames() {
		if name != "" && i < len(groups) {
			match.Named[name] = groups[i]
		}
	}
	return match, true
}

func (m regexpMatcher) String() string {
	return m.re.String()
}

// Phrase matches the phrase case-insensitively as whole words anywhere in the text.
func Phrase(phrase string) Matcher {
	phrase = strings.TrimSpace(phrase)
	expr := regexp.QuoteMeta(phrase)
	if startsWithWord(phrase) {
		expr = `\b` + expr
	}
	if endsWithWord(phrase) {
		expr += `\b`
	}
	return Regexp(regexp.MustCompile(`(?i)` + expr))
}

// Anything matches every message.
func Anything() Matcher {
	return MatcherFunc(func(text string) (*Match, bool) {
		return &Match{Text: text, Captures: []string{text}, Named: map[string]string{}}, true
	})
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func startsWithWord(s string) bool { return s != "" && isWordByte(s[0]) }
func endsWithWord(s string) bool   { return s != "" && isWordByte(s[len(s)-1]) }
