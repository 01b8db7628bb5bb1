// Package knowledge provides ranked lookup of strategy rules and market notes.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Snippet is one stored rule or note.
type Snippet struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Score     int       `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Lookup returns snippets relevant to a topic, best first. An empty result
// is not an error.
type Lookup interface {
	Lookup(ctx context.Context, topic string, limit int) ([]Snippet, error)
}

// DefaultLimit is the number of snippets returned when limit is not positive.
const DefaultLimit = 3

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "for": true,
	"to": true, "in": true, "on": true, "is": true, "if": true, "at": true,
	"or": true, "be": true, "with": true, "by": true,
}

// Terms splits text into lowercase search terms, dropping stop words and
// duplicates.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// score counts query terms present in the snippet. Topic matches weigh double.
func score(query []string, s Snippet) int {
	topic := make(map[string]bool)
	for _, t := range Terms(s.Topic) {
		topic[t] = true
	}
	body := make(map[string]bool)
	for _, t := range Terms(s.Content) {
		body[t] = true
	}
	n := 0
	for _, q := range query {
		if topic[q] {
			n += 2
		}
		if body[q] {
			n++
		}
	}
	return n
}

// rank scores candidates, drops non-matches and returns the best limit.
// Ties keep insertion order.
func rank(topic string, candidates []Snippet, limit int) []Snippet {
	if limit <= 0 {
		limit = DefaultLimit
	}
	query := Terms(topic)
	if len(query) == 0 {
		return nil
	}
	var out []Snippet
	for _, c := range candidates {
		if sc := score(query, c); sc > 0 {
			c.Score = sc
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Join renders snippets as prompt context.
func Join(snippets []Snippet, empty string) string {
	if len(snippets) == 0 {
		return empty
	}
	parts := make([]string, len(snippets))
	for i, s := range snippets {
		parts[i] = s.Content
	}
	return strings.Join(parts, "\n\n")
}

// Memory is an in-process Lookup.
type Memory struct {
	mu       sync.RWMutex
	snippets []Snippet
}

// NewMemory creates a lookup over the given snippets.
func NewMemory(snippets ...Snippet) *Memory {
	m := &Memory{}
	for _, s := range snippets {
		m.Add(s)
	}
	return m
}

// Add appends a snippet and assigns its id.
func (m *Memory) Add(s Snippet) Snippet {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.snippets) + 1)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.snippets = append(m.snippets, s)
	return s
}

// Lookup implements Lookup.
func (m *Memory) Lookup(ctx context.Context, topic string, limit int) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return rank(topic, m.snippets, limit), nil
}

var _ Lookup = (*Memory)(nil)
