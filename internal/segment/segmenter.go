// Package segment splits free text into normalized search terms. CJK runs
// go through dictionary-based segmentation (single characters are not
// meaningful lexical units); Latin/numeric runs split on non-alphanumeric
// boundaries. Mixed-script input is partitioned into script runs and each
// run is segmented independently.
package segment

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-ego/gse"
)

// defaultStopwords are interrogative and filler words removed after
// segmentation. The CJK entries come from the recipe query domain.
var defaultStopwords = []string{
	"的", "是", "在", "有", "和", "或", "与", "为", "了", "要", "做", "怎么", "如何",
	"a", "an", "the", "of", "to", "how", "what", "with",
}

// Segmenter tokenizes queries and document fields.
type Segmenter struct {
	seg  gse.Segmenter
	stop map[string]struct{}
}

// New creates a Segmenter with the default embedded dictionary. Extra
// stop-words are merged into the built-in set.
func New(extraStopwords ...string) (*Segmenter, error) {
	s := &Segmenter{stop: make(map[string]struct{})}
	if err := s.seg.LoadDict(); err != nil {
		return nil, fmt.Errorf("load segmenter dictionary: %w", err)
	}
	for _, w := range defaultStopwords {
		s.stop[w] = struct{}{}
	}
	for _, w := range extraStopwords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			s.stop[w] = struct{}{}
		}
	}
	return s, nil
}

// Tokens returns the ordered, normalized terms of text. Empty or
// whitespace-only input yields an empty result, not an error.
func (s *Segmenter) Tokens(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	var tokens []string
	for _, run := range splitScriptRuns(text) {
		if run.cjk {
			tokens = append(tokens, s.cutCJK(run.text)...)
		} else {
			tokens = append(tokens, splitLatin(run.text)...)
		}
	}

	out := tokens[:0]
	for _, t := range tokens {
		if _, skip := s.stop[t]; !skip {
			out = append(out, t)
		}
	}
	return out
}

// cutCJK segments one CJK run. Single-rune tokens are dropped unless the
// whole run is a single rune (single-character queries must still match).
// When the dictionary recognizes nothing, the run itself becomes the token.
func (s *Segmenter) cutCJK(run string) []string {
	runes := []rune(run)
	if len(runes) == 1 {
		return []string{run}
	}

	cut := s.seg.Cut(run, true)
	kept := make([]string, 0, len(cut))
	for _, t := range cut {
		t = strings.TrimSpace(t)
		if len([]rune(t)) >= 2 {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return []string{run}
	}
	return kept
}

// splitLatin splits a non-CJK run on punctuation and whitespace.
func splitLatin(run string) []string {
	return strings.FieldsFunc(run, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type scriptRun struct {
	text string
	cjk  bool
}

// splitScriptRuns partitions text into maximal runs of CJK and non-CJK
// characters, preserving order.
func splitScriptRuns(text string) []scriptRun {
	var runs []scriptRun
	var buf strings.Builder
	var bufCJK bool

	flush := func() {
		if buf.Len() > 0 {
			runs = append(runs, scriptRun{text: buf.String(), cjk: bufCJK})
			buf.Reset()
		}
	}

	for _, r := range text {
		c := isCJK(r)
		if buf.Len() > 0 && c != bufCJK {
			flush()
		}
		bufCJK = c
		buf.WriteRune(r)
	}
	flush()
	return runs
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
