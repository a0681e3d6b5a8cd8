// Package phonetic matches spoken words against known phrases using Double
// Metaphone encoding and Jaro-Winkler similarity.
//
// Speech recognisers routinely misspell names and rare words ("hey jarvis"
// becomes "hey jarvus", "computer" becomes "komputer"). Matching the
// sound of a phrase instead of its spelling makes wake phrases robust to such
// errors.
//
// A head of the transcript matches a phrase when either the spelling or the
// concatenated Double Metaphone codes of the two reach the Jaro-Winkler
// threshold, and their lengths are comparable.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultThreshold = 0.85

	// minLengthRatio rejects heads much shorter or longer than the phrase;
	// Jaro-Winkler alone rewards shared prefixes too generously.
	minLengthRatio = 0.6
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum Jaro-Winkler similarity for a match.
// Default: 0.85.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	threshold float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{threshold: defaultThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Threshold returns the configured similarity threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Score returns the similarity of words and phrase in [0, 1]: the better of
// the spelling and the phonetic similarity, or 0 when their lengths differ
// too much.
func (m *Matcher) Score(words, phrase string) float64 {
	return score(Words(words), Words(phrase))
}

func score(input, phrase []string) float64 {
	if len(input) == 0 || len(phrase) == 0 {
		return 0
	}
	a, b := strings.Join(input, ""), strings.Join(phrase, "")
	la, lb := len([]rune(a)), len([]rune(b))
	if float64(min(la, lb))/float64(max(la, lb)) < minLengthRatio {
		return 0
	}
	spelling := matchr.JaroWinkler(a, b, false)
	ca, cb := codes(input), codes(phrase)
	if ca == "" || cb == "" {
		return spelling
	}
	return max(spelling, matchr.JaroWinkler(ca, cb, false))
}

// PrefixMatch describes a phrase found at the start of a text.
type PrefixMatch struct {
	// Phrase is the matched phrase as configured.
	Phrase string
	// Score is the similarity of the match.
	Score float64
	// Rest is the text following the matched words, with leading
	// punctuation and whitespace removed.
	Rest string
}

// MatchPrefix reports whether text begins with one of phrases. For a phrase
// of n words the first n-1, n and n+1 words of text are tried, so a
// recogniser splitting or merging a word still matches. The best-scoring
// head wins; on a tie the shorter head is kept.
func (m *Matcher) MatchPrefix(text string, phrases []string) (PrefixMatch, bool) {
	spans := wordSpans(text)
	var (
		best  PrefixMatch
		found bool
	)
	for _, p := range phrases {
		phrase := Words(p)
		n := len(phrase)
		if n == 0 {
			continue
		}
		for k := max(1, n-1); k <= n+1 && k <= len(spans); k++ {
			head := make([]string, k)
			for i := range k {
				head[i] = spans[i].word
			}
			s := score(head, phrase)
			if s < m.threshold || s <= best.Score {
				continue
			}
			best = PrefixMatch{Phrase: p, Score: s, Rest: trimLeading(text[spans[k-1].end:])}
			found = true
		}
	}
	return best, found
}

// Words lower-cases s and splits it into words, dropping punctuation.
func Words(s string) []string {
	spans := wordSpans(s)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = sp.word
	}
	return out
}

type span struct {
	word string
	end  int // byte offset just past the word in the source text
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

func wordSpans(s string) []span {
	var (
		out   []span
		start = -1
	)
	for i, r := range s {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, span{word: strings.ToLower(s[start:i]), end: i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, span{word: strings.ToLower(s[start:]), end: len(s)})
	}
	return out
}

func trimLeading(s string) string {
	return strings.TrimSpace(strings.TrimLeftFunc(s, func(r rune) bool {
		return !isWordRune(r)
	}))
}

// codes concatenates the primary Double Metaphone codes of tokens.
func codes(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		p, _ := matchr.DoubleMetaphone(t)
		b.WriteString(p)
	}
	return b.String()
}
