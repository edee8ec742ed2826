// Package negation decides whether a cue in the same sentence, to the left
// of a span, negates it.
package negation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/doctalk/pkg/errors"
)

// DefaultWindow is the number of trailing left-context tokens searched for
// pre-cues.
const DefaultWindow = 8

// DefaultPreCues must precede the span within the window.
var DefaultPreCues = []string{"no", "not", "denies", "without", "absence of", "free of"}

// DefaultPhraseCues negate when found anywhere in the left context.
var DefaultPhraseCues = []string{"negative for"}

// Config configures a Scorer.
type Config struct {
	Window     int      `json:"window" yaml:"window"`
	PreCues    []string `json:"pre_cues" yaml:"pre_cues"`
	PhraseCues []string `json:"phrase_cues" yaml:"phrase_cues"`
}

// DefaultConfig returns the stock cue lists.
func DefaultConfig() Config {
	return Config{
		Window:     DefaultWindow,
		PreCues:    append([]string(nil), DefaultPreCues...),
		PhraseCues: append([]string(nil), DefaultPhraseCues...),
	}
}

// Scorer is safe for concurrent use.
type Scorer struct {
	window  int
	pre     [][]string
	phrases []string
}

// NewScorer validates cfg.  Empty cue lists fall back to the defaults.
func NewScorer(cfg Config) (*Scorer, error) {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Window < 1 {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "negation window must be positive, got %d", cfg.Window)
	}
	if len(cfg.PreCues) == 0 {
		cfg.PreCues = DefaultPreCues
	}
	if len(cfg.PhraseCues) == 0 {
		cfg.PhraseCues = DefaultPhraseCues
	}

	s := &Scorer{window: cfg.Window}
	for _, cue := range cfg.PreCues {
		toks := tokenize(strings.ToLower(cue))
		if len(toks) == 0 {
			continue
		}
		if len(toks) > cfg.Window {
			return nil, errors.Newf(errors.ErrCodeConfigInvalid, "pre-cue %q is longer than the %d token window", cue, cfg.Window)
		}
		s.pre = append(s.pre, toks)
	}
	for _, cue := range cfg.PhraseCues {
		if c := strings.ToLower(strings.TrimSpace(cue)); c != "" {
			s.phrases = append(s.phrases, c)
		}
	}
	return s, nil
}

// Default returns a Scorer with the stock configuration.
func Default() *Scorer {
	s, _ := NewScorer(DefaultConfig())
	return s
}

// IsNegated reports whether the span starting at byte offset start is
// negated.  Only the text between the sentence start and start is examined,
// so cues after the term or in earlier sentences have no effect.  end is
// accepted for symmetry with span ranges and not consulted.
func (s *Scorer) IsNegated(text string, start, end int) bool {
	if start <= 0 || text == "" {
		return false
	}
	if start > len(text) {
		start = len(text)
	}

	left := strings.ToLower(text[SentenceStart(text, start):start])
	if strings.TrimSpace(left) == "" {
		return false
	}

	for _, p := range s.phrases {
		if strings.Contains(left, p) {
			return true
		}
	}

	toks := tokenize(left)
	if len(toks) > s.window {
		toks = toks[len(toks)-s.window:]
	}
	for _, cue := range s.pre {
		if containsRun(toks, cue) {
			return true
		}
	}
	return false
}

// SentenceStart returns the offset just after the last sentence terminator
// before pos.  A terminator is '.', '!' or '?' followed by whitespace or the
// end of text.  Without one the sentence starts at 0.
func SentenceStart(text string, pos int) int {
	if pos > len(text) {
		pos = len(text)
	}
	for i := pos - 1; i >= 0; i-- {
		switch text[i] {
		case '.', '!', '?':
			next := i + 1
			if next >= len(text) {
				return next
			}
			r, _ := utf8.DecodeRuneInString(text[next:])
			if unicode.IsSpace(r) {
				return next
			}
		}
	}
	return 0
}

// tokenize splits s into runs of word characters and single punctuation
// characters, dropping whitespace.
func tokenize(s string) []string {
	var out []string
	wordStart := -1
	for i, r := range s {
		word := r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
		if word {
			if wordStart < 0 {
				wordStart = i
			}
			continue
		}
		if wordStart >= 0 {
			out = append(out, s[wordStart:i])
			wordStart = -1
		}
		if !unicode.IsSpace(r) {
			out = append(out, string(r))
		}
	}
	if wordStart >= 0 {
		out = append(out, s[wordStart:])
	}
	return out
}

func containsRun(toks, cue []string) bool {
	if len(cue) == 0 || len(cue) > len(toks) {
		return false
	}
	for i := 0; i+len(cue) <= len(toks); i++ {
		match := true
		for j := range cue {
			if toks[i+j] != cue[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
