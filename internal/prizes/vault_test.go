package prizes

import (
	"slices"
	"strings"
	"testing"
)

func TestRandomPrize(t *testing.T) {
	list := []string{"one", "two", "three"}

	v, err := Load(strings.NewReader(`{"life":["one"," two ","three"],"empty":[]}`))
	if err != nil {
		t.Fatal(err)
	}

	for range 50 {
		p, ok := v.RandomPrize("life")
		if !ok {
			t.Fatal("RandomPrize(life) reported no prize")
		}
		if !slices.Contains(list, p) {
			t.Fatalf("RandomPrize(life) = %q, not in %v", p, list)
		}
	}

	if _, ok := v.RandomPrize("empty"); ok {
		t.Error("empty category produced a prize")
	}
	if _, ok := v.RandomPrize("missing"); ok {
		t.Error("missing category produced a prize")
	}

	var nilVault *Vault
	if _, ok := nilVault.RandomPrize("life"); ok {
		t.Error("nil vault produced a prize")
	}
}

func TestLoadRejectsBlankPrize(t *testing.T) {
	if _, err := Load(strings.NewReader(`{"life":["ok","  "]}`)); err == nil {
		t.Fatal("expected error for blank prize")
	}
	if _, err := Load(strings.NewReader(`not json`)); err == nil {
		t.Fatal("expected error for malformed input")
	}
}

func TestDefaultVault(t *testing.T) {
	v, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []string{"intimate", "life", "cringe"} {
		if _, ok := v.RandomPrize(c); !ok {
			t.Errorf("no default prize for %q", c)
		}
	}
}
