package lexicon

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaultPositive = []string{
	"excellent", "great", "amazing", "fantastic", "wonderful",
	"love", "perfect", "best", "outstanding", "beautiful",
	"fast", "reliable", "quality", "worth", "recommend",
}

var defaultNegative = []string{
	"poor", "bad", "terrible", "awful", "horrible",
	"hate", "worst", "broken", "disappointing", "waste",
	"slow", "cheap", "problem", "issue", "defective",
}

var defaultStopwords = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "is", "was", "are", "be", "been", "it", "this", "that", "with",
}

// Lexicon holds the closed word sets used by sentiment and topic analysis.
// A Lexicon is never mutated after construction and is safe to share.
type Lexicon struct {
	positive  []string
	negative  []string
	stopwords map[string]struct{}
}

var std = New(defaultPositive, defaultNegative, defaultStopwords)

// Default returns the built-in lexicon.
func Default() *Lexicon { return std }

// New builds a lexicon from the given word lists. Words are lower-cased,
// trimmed and deduplicated.
func New(positive, negative, stopwords []string) *Lexicon {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		w = normalize(w)
		if w == "" {
			continue
		}
		stops[w] = struct{}{}
	}
	return &Lexicon{
		positive:  uniqueSorted(positive),
		negative:  uniqueSorted(negative),
		stopwords: stops,
	}
}

// Positive returns a copy of the positive keyword set.
func (l *Lexicon) Positive() []string { return append([]string(nil), l.positive...) }

// Negative returns a copy of the negative keyword set.
func (l *Lexicon) Negative() []string { return append([]string(nil), l.negative...) }

// IsStopword reports whether a lower-cased token is in the stop-word set.
func (l *Lexicon) IsStopword(token string) bool {
	_, ok := l.stopwords[token]
	return ok
}

// Stopwords returns the stop-word set in sorted order.
func (l *Lexicon) Stopwords() []string {
	out := make([]string, 0, len(l.stopwords))
	for w := range l.stopwords {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// CountPositive returns how many distinct positive keywords occur in lowered.
func (l *Lexicon) CountPositive(lowered string) int { return countContained(lowered, l.positive) }

// CountNegative returns how many distinct negative keywords occur in lowered.
func (l *Lexicon) CountNegative(lowered string) int { return countContained(lowered, l.negative) }

func countContained(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// File is the YAML shape accepted by Load. Omitted lists keep the defaults.
type File struct {
	Positive  []string `yaml:"positive"`
	Negative  []string `yaml:"negative"`
	Stopwords []string `yaml:"stopwords"`
}

// Load reads a lexicon override from a YAML file.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}

	pos, neg, stops := defaultPositive, defaultNegative, defaultStopwords
	if len(f.Positive) > 0 {
		pos = f.Positive
	}
	if len(f.Negative) > 0 {
		neg = f.Negative
	}
	if len(f.Stopwords) > 0 {
		stops = f.Stopwords
	}
	return New(pos, neg, stops), nil
}

func normalize(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

func uniqueSorted(words []string) []string {
	set := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = normalize(w)
		if w == "" {
			continue
		}
		if _, ok := set[w]; ok {
			continue
		}
		set[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
