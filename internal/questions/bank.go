// Package questions loads the category catalog and the per-category question
// bank. A Bank is read-only once loaded and safe for concurrent use.
package questions

import (
	"embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// CatalogFile is the name of the category catalog inside a bank directory.
const CatalogFile = "categories.json"

//go:embed data
var defaultData embed.FS

// Question is a single prompt served as one round.
type Question struct {
	ID       string `json:"id"`
	Prompt   string `json:"question"`
	Guidance string `json:"guidance"`
}

// Category describes one partition of the bank.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	File        string `json:"file"`
}

type Bank struct {
	categories []Category
	byID       map[string]Category
	questions  map[string][]Question
}

// Default returns the bank compiled into the binary.
func Default() (*Bank, error) {
	sub, err := fs.Sub(defaultData, "data")
	if err != nil {
		return nil, err
	}

	return Load(sub)
}

// LoadDir loads a bank from a directory on disk laid out like the embedded one.
func LoadDir(dir string) (*Bank, error) {
	return Load(os.DirFS(dir))
}

// Load reads the catalog and every category file from fsys. Any malformed
// record fails the whole load.
func Load(fsys fs.FS) (*Bank, error) {
	raw, err := fs.ReadFile(fsys, CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", CatalogFile, err)
	}

	var categories []Category
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", CatalogFile, err)
	}

	if len(categories) == 0 {
		return nil, fmt.Errorf("%s: no categories defined", CatalogFile)
	}

	b := &Bank{
		categories: make([]Category, 0, len(categories)),
		byID:       make(map[string]Category, len(categories)),
		questions:  make(map[string][]Question, len(categories)),
	}

	for i, c := range categories {
		c.ID = strings.TrimSpace(c.ID)
		c.File = strings.TrimSpace(c.File)

		switch {
		case c.ID == "":
			return nil, fmt.Errorf("%s: category %d has no id", CatalogFile, i)
		case c.File == "":
			return nil, fmt.Errorf("%s: category %q has no file", CatalogFile, c.ID)
		}

		if _, dup := b.byID[c.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate category %q", CatalogFile, c.ID)
		}

		if c.Name == "" {
			c.Name = c.ID
		}

		f, err := fsys.Open(c.File)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c.ID, err)
		}

		qs, err := parseQuestions(c.File, f)
		f.Close()
		if err != nil {
			return nil, err
		}

		b.categories = append(b.categories, c)
		b.byID[c.ID] = c
		b.questions[c.ID] = qs
	}

	return b, nil
}

// parseQuestions reads a CSV file with an id,question,guidance header.
// Column order is free; extra columns are ignored.
func parseQuestions(name string, r io.Reader) ([]Question, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file", name)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	cols := map[string]int{"id": -1, "question": -1, "guidance": -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := cols[key]; ok {
			cols[key] = i
		}
	}
	for key, idx := range cols {
		if idx < 0 {
			return nil, fmt.Errorf("%s: missing %q column", name, key)
		}
	}

	var (
		qs   []Question
		seen = make(map[string]int)
	)

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		line, _ := cr.FieldPos(0)

		q := Question{
			ID:       strings.TrimSpace(rec[cols["id"]]),
			Prompt:   strings.TrimSpace(rec[cols["question"]]),
			Guidance: strings.TrimSpace(rec[cols["guidance"]]),
		}

		switch {
		case q.ID == "":
			return nil, fmt.Errorf("%s:%d: empty id", name, line)
		case q.Prompt == "":
			return nil, fmt.Errorf("%s:%d: empty question", name, line)
		case q.Guidance == "":
			return nil, fmt.Errorf("%s:%d: empty guidance", name, line)
		}

		if prev, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%s:%d: id %q already used on line %d", name, line, q.ID, prev)
		}
		seen[q.ID] = line

		qs = append(qs, q)
	}

	if len(qs) == 0 {
		return nil, fmt.Errorf("%s: no questions", name)
	}

	return qs, nil
}

// Categories returns the catalog in file order.
func (b *Bank) Categories() []Category {
	out := make([]Category, len(b.categories))
	copy(out, b.categories)

	return out
}

func (b *Bank) Category(id string) (Category, bool) {
	c, ok := b.byID[id]

	return c, ok
}

func (b *Bank) IsCategoryKnown(id string) bool {
	_, ok := b.byID[id]

	return ok
}

// Len reports the size of a category's pool, or 0 for unknown categories.
func (b *Bank) Len(category string) int {
	return len(b.questions[category])
}

// UnusedQuestions returns the questions of category whose ids are not in
// used, in file order. The used set is only read.
func (b *Bank) UnusedQuestions(category string, used map[string]struct{}) []Question {
	pool := b.questions[category]

	out := make([]Question, 0, len(pool))
	for _, q := range pool {
		if _, ok := used[q.ID]; ok {
			continue
		}
		out = append(out, q)
	}

	return out
}
