// Package corpus loads the fixed text corpus and category vocabulary.
// Both are read once per process and never change afterwards.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hpungsan/anno/internal/errors"
)

// maxLineBytes bounds a single corpus line.
const maxLineBytes = 1024 * 1024

// Text is one record of the corpus. Order in the corpus file defines navigation order.
type Text struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// Corpus bundles the texts, the category vocabulary and an id lookup.
type Corpus struct {
	Texts      []Text
	Categories []string

	index map[string]int
	vocab map[string]bool
}

// New builds a Corpus from already loaded texts and categories.
// When an id repeats, Index resolves to its first occurrence.
func New(texts []Text, categories []string) *Corpus {
	c := &Corpus{
		Texts:      texts,
		Categories: categories,
		index:      make(map[string]int, len(texts)),
		vocab:      make(map[string]bool, len(categories)),
	}
	for i, t := range texts {
		if _, dup := c.index[t.ID]; !dup {
			c.index[t.ID] = i
		}
	}
	for _, cat := range categories {
		c.vocab[cat] = true
	}
	return c
}

// Len returns the number of texts.
func (c *Corpus) Len() int {
	return len(c.Texts)
}

// Index returns the position of the text with the given id.
func (c *Corpus) Index(id string) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// IsCategory reports whether label belongs to the vocabulary.
func (c *Corpus) IsCategory(label string) bool {
	return c.vocab[label]
}

// DuplicateIDs returns ids that appear more than once, in first-seen order.
func (c *Corpus) DuplicateIDs() []string {
	seen := make(map[string]int, len(c.Texts))
	var dups []string
	for _, t := range c.Texts {
		seen[t.ID]++
		if seen[t.ID] == 2 {
			dups = append(dups, t.ID)
		}
	}
	return dups
}

type cacheKey struct {
	texts      string
	categories string
}

var (
	cacheMu sync.Mutex
	cache   = map[cacheKey]*Corpus{}
)

// Load reads both files and memoizes the result per path pair for the process lifetime.
func Load(textsPath, categoriesPath string) (*Corpus, error) {
	key := cacheKey{texts: textsPath, categories: categoriesPath}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if c, ok := cache[key]; ok {
		return c, nil
	}

	texts, err := LoadTexts(textsPath)
	if err != nil {
		return nil, err
	}
	categories, err := LoadCategories(categoriesPath)
	if err != nil {
		return nil, err
	}

	c := New(texts, categories)
	cache[key] = c
	return c, nil
}

// LoadTexts parses a line-oriented corpus file. Each non-blank line is
// "<id><whitespace><body>"; the body keeps its internal whitespace.
func LoadTexts(path string) ([]Text, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewCorpusRead(path, err)
	}
	defer f.Close()

	var texts []Text
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if t, ok := ParseLine(line); ok {
			texts = append(texts, t)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewCorpusRead(path, err)
	}

	return texts, nil
}

// ParseLine splits a corpus line into id and body. Blank lines return ok=false.
func ParseLine(line string) (Text, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Text{}, false
	}

	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return Text{ID: line}, true
	}
	return Text{
		ID:   line[:idx],
		Body: strings.TrimLeftFunc(line[idx:], unicode.IsSpace),
	}, true
}

// LoadCategories parses a JSON array of strings.
// The result is deduplicated and sorted for stable display order.
func LoadCategories(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewCategoryRead(path, err)
	}

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewCategoryRead(path, fmt.Errorf("expected a JSON array of strings: %w", err))
	}

	seen := make(map[string]bool, len(raw))
	categories := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		categories = append(categories, c)
	}
	sort.Strings(categories)

	return categories, nil
}
