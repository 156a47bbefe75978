package antispam

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// WordFilter matches a configured block-list against free-form text.
// Matching is case-insensitive and boundary-aware: "class" matches the
// standalone word but not "classification".
type WordFilter struct {
	words    []string
	patterns []*regexp.Regexp
}

func NewWordFilter(words []string) *WordFilter {
	f := &WordFilter{}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		p, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(strings.ToLower(w)) + `\b`)
		if err != nil {
			// QuoteMeta makes this unreachable for sane inputs
			slog.Warn("skipping unparseable block-list entry", "word", w, "err", err)
			continue
		}
		f.words = append(f.words, w)
		f.patterns = append(f.patterns, p)
	}
	return f
}

// Match returns the block-list entries found in text, in list order.
func (f *WordFilter) Match(text string) []string {
	if len(f.patterns) == 0 || text == "" {
		return nil
	}
	folded := foldText(text)
	var hits []string
	for i, p := range f.patterns {
		if p.MatchString(text) || p.MatchString(folded) {
			hits = append(hits, f.words[i])
		}
	}
	return hits
}

// strip diacritics so accented spellings of blocked words still match
func foldText(text string) string {
	// the transform chain is stateful and must be rebuilt per call
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(normFunc, text)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		return text
	}
	return out
}

var urlPattern = regexp.MustCompile(`(?i)\b(https?://|www\.)\S+`)

// ContainsURL reports whether text contains an http(s) or www link.
func ContainsURL(text string) (string, bool) {
	m := urlPattern.FindString(text)
	return m, m != ""
}
