package session

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/qj0r9j0vc2/slacks/internal/domain/entity"
)

// TextFlag transforms message text before a listener's matcher sees it.
type TextFlag string

const (
	// FlagDowncase lowercases the text.
	FlagDowncase TextFlag = "downcase"
	// FlagNoPunctuation strips punctuation other than @ and #.
	FlagNoPunctuation TextFlag = "no_punctuation"
	// FlagNoMentions strips mentions of the bot.
	FlagNoMentions TextFlag = "no_mentions"
	// FlagNoEmoji strips :emoji: codes. Codes of digits alone are kept so clock times survive.
	FlagNoEmoji TextFlag = "no_emoji"
)

var (
	punctuationPattern = regexp.MustCompile(`[^\w\s@#]`)
	emojiPattern       = regexp.MustCompile(`:[\w+'-]*[A-Za-z_+'-][\w+'-]*:`)
	spacePattern       = regexp.MustCompile(`\s{2,}`)
)

func (f TextFlag) valid() bool {
	switch f {
	case FlagDowncase, FlagNoPunctuation, FlagNoMentions, FlagNoEmoji:
		return true
	}
	return false
}

// normalizeFlags validates, dedupes and sorts flags so equal sets share a cache key.
func normalizeFlags(flags []TextFlag) ([]TextFlag, error) {
	seen := make(map[TextFlag]bool, len(flags))
	out := make([]TextFlag, 0, len(flags))
	for _, f := range flags {
		if !f.valid() {
			return nil, fmt.Errorf("%q is not a recognized text flag", string(f))
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func flagsKey(flags []TextFlag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

// applyFlags runs flags over text in sorted order.
func applyFlags(text string, flags []TextFlag, bot entity.BotUser) string {
	for _, f := range flags {
		switch f {
		case FlagDowncase:
			text = strings.ToLower(text)
		case FlagNoPunctuation:
			text = punctuationPattern.ReplaceAllString(text, "")
		case FlagNoMentions:
			if bot.Name != "" {
				re := regexp.MustCompile(`(?i)(?:^|\W+)@` + regexp.QuoteMeta(bot.Name) + `\b`)
				text = re.ReplaceAllString(text, "")
			}
		case FlagNoEmoji:
			text = emojiPattern.ReplaceAllString(text, "")
		}
	}
	if len(flags) > 0 {
		text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	}
	return text
}
