// Package prizes holds the per-category prize lists handed to winners.
package prizes

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"
)

//go:embed data/prizes.json
var defaultData embed.FS

// Vault is read-only after load and safe for concurrent use.
type Vault struct {
	prizes map[string][]string
}

// Default returns the vault compiled into the binary.
func Default() (*Vault, error) {
	f, err := defaultData.Open("data/prizes.json")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f)
}

func LoadFile(path string) (*Vault, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f)
}

// Load decodes a JSON object mapping category ids to prize lists.
func Load(r io.Reader) (*Vault, error) {
	var raw map[string][]string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing prizes: %w", err)
	}

	v := &Vault{prizes: make(map[string][]string, len(raw))}

	for category, list := range raw {
		cleaned := make([]string, 0, len(list))
		for i, p := range list {
			p = strings.TrimSpace(p)
			if p == "" {
				return nil, fmt.Errorf("prizes: %q entry %d is empty", category, i)
			}
			cleaned = append(cleaned, p)
		}
		v.prizes[category] = cleaned
	}

	return v, nil
}

// RandomPrize picks one prize for category, reporting false when the category
// has none.
func (v *Vault) RandomPrize(category string) (string, bool) {
	if v == nil {
		return "", false
	}

	list := v.prizes[category]
	if len(list) == 0 {
		return "", false
	}

	return list[rand.IntN(len(list))], true
}
