package session

import (
	"cmp"
	"fmt"
	"slices"
)

// Standing is one line of the final ranking.
type Standing struct {
	Position int
	Label    string
	Player   Player
	Score    int
}

// Result is the outcome of a finished session.
type Result struct {
	Standings []Standing
	Winner    *Standing
	Prize     string
	Rounds    int
}

// Rank orders players by score, highest first. Equal scores keep join order.
func Rank(players []Player, scores map[string]int) []Standing {
	ordered := slices.Clone(players)
	slices.SortStableFunc(ordered, func(a, b Player) int {
		return cmp.Compare(scores[b.ID], scores[a.ID])
	})

	out := make([]Standing, 0, len(ordered))
	for i, p := range ordered {
		out = append(out, Standing{
			Position: i + 1,
			Label:    ordinal(i + 1),
			Player:   p,
			Score:    scores[p.ID],
		})
	}

	return out
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}

	return fmt.Sprintf("%d%s", n, suffix)
}
