package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

func TestCreate(t *testing.T) {
	r := NewRegistry()

	code, err := r.Create("life", "p1", "One")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NormalizeCode(code); err != nil {
		t.Fatalf("generated code %q is malformed: %v", code, err)
	}

	snap, err := r.Lookup(code)
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != WaitingForPlayers {
		t.Errorf("State = %v", snap.State)
	}
	if len(snap.Players) != 1 || snap.Players[0].ID != "p1" {
		t.Errorf("Players = %v", snap.Players)
	}
	if score, ok := snap.Scores["p1"]; !ok || score != 0 {
		t.Errorf("Scores = %v", snap.Scores)
	}
	if snap.CreatorID != "p1" || snap.Category != "life" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCodesAreDistinct(t *testing.T) {
	r := NewRegistry()

	seen := make(map[string]bool, 1000)
	for i := range 1000 {
		code, err := r.Create("life", fmt.Sprintf("p%d", i), "P")
		if err != nil {
			t.Fatal(err)
		}
		if seen[code] {
			t.Fatalf("code %s issued twice", code)
		}
		seen[code] = true
	}

	if r.Len() != 1000 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestCreateRetriesOnCollision(t *testing.T) {
	codes := []string{"AAAAAA", "AAAAAA", "aaaaaa", "BBBBBB"}

	var i int
	r := NewRegistry(WithCodeGenerator(func() (string, error) {
		c := codes[i]
		i++
		return c, nil
	}))

	first, err := r.Create("life", "p1", "One")
	if err != nil || first != "AAAAAA" {
		t.Fatalf("first = %q, %v", first, err)
	}

	second, err := r.Create("life", "p2", "Two")
	if err != nil || second != "BBBBBB" {
		t.Fatalf("second = %q, %v", second, err)
	}
}

func TestCreateGivesUp(t *testing.T) {
	r := NewRegistry(WithCodeGenerator(func() (string, error) { return "SAME00", nil }))

	if _, err := r.Create("life", "p1", "One"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("life", "p2", "Two"); !errors.Is(err, ErrCodeSpace) {
		t.Fatalf("err = %v, want ErrCodeSpace", err)
	}
}

func TestJoin(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("life", "p1", "One")

	tests := []struct {
		name    string
		code    string
		player  string
		wantErr error
	}{
		{name: "new player", code: code, player: "p2"},
		{name: "lowercase code", code: " " + strings.ToLower(code) + " ", player: "p3"},
		{name: "already joined", code: code, player: "p2", wantErr: ErrAlreadyJoined},
		{name: "creator again", code: code, player: "p1", wantErr: ErrAlreadyJoined},
		{name: "unknown code", code: "ZZZZZZ", player: "p4", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Join(tt.code, tt.player, "name")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Join() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	snap, _ := r.Lookup(code)
	if len(snap.Players) != 3 || len(snap.Scores) != 3 {
		t.Fatalf("players %v scores %v", snap.Players, snap.Scores)
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if snap.Players[i].ID != want {
			t.Errorf("join order[%d] = %s, want %s", i, snap.Players[i].ID, want)
		}
	}
}

func TestJoinAfterStart(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("life", "p1", "One")
	_, _ = r.Join(code, "p2", "Two")

	e := NewEngine(pool(3))
	if err := r.Do(code, func(s *Session) error {
		e.Advance(s)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Join(code, "p3", "Three"); !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("late join error = %v, want ErrNotWaiting", err)
	}
}

func TestConcurrentJoins(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("life", "creator", "Creator")

	const n = 200

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Join(code, fmt.Sprintf("p%d", i), "P"); err != nil {
				t.Errorf("join p%d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	snap, err := r.Lookup(code)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Players) != n+1 || len(snap.Scores) != n+1 {
		t.Fatalf("players %d scores %d, want %d", len(snap.Players), len(snap.Scores), n+1)
	}
	for _, p := range snap.Players {
		if _, ok := snap.Scores[p.ID]; !ok {
			t.Fatalf("player %s has no score entry", p.ID)
		}
	}
}

func TestRemoveRacingJoin(t *testing.T) {
	for range 50 {
		r := NewRegistry()
		code, _ := r.Create("life", "p1", "One")

		var (
			wg      sync.WaitGroup
			joinErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, joinErr = r.Join(code, "p2", "Two")
		}()
		go func() {
			defer wg.Done()
			r.Remove(code)
		}()
		wg.Wait()

		if joinErr != nil && !errors.Is(joinErr, ErrNotFound) {
			t.Fatalf("join racing remove: %v", joinErr)
		}
		if _, err := r.Lookup(code); !errors.Is(err, ErrNotFound) {
			t.Fatalf("session survived Remove: %v", err)
		}
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("life", "p1", "One")

	if !r.Remove(code) {
		t.Fatal("first Remove reported nothing removed")
	}
	if r.Remove(code) {
		t.Fatal("second Remove reported a removal")
	}
	if r.Remove("NOPE00") {
		t.Fatal("Remove of unknown code reported a removal")
	}
	if err := r.Do(code, func(*Session) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Do after Remove: %v", err)
	}
}

func TestDoRemovesEndedSessions(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("life", "p1", "One")

	sentinel := errors.New("boom")
	err := r.Do(code, func(s *Session) error {
		s.Cancel()
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Do() error = %v", err)
	}

	if _, err := r.Lookup(code); !errors.Is(err, ErrNotFound) {
		t.Fatal("ended session still registered")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestConcurrentVotesAreAllCounted(t *testing.T) {
	r := NewRegistry()
	code, _ := r.Create("life", "p0", "P0")

	const n = 50
	for i := 1; i < n; i++ {
		_, _ = r.Join(code, fmt.Sprintf("p%d", i), "P")
	}

	e := NewEngine(pool(2))
	_ = r.Do(code, func(s *Session) error {
		e.Advance(s)
		return nil
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completes int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			voter := fmt.Sprintf("p%d", i)
			target := fmt.Sprintf("p%d", (i+1)%n)
			err := r.Do(code, func(s *Session) error {
				res, err := s.CastVote(voter, target)
				if err == nil && res.Complete {
					mu.Lock()
					completes++
					mu.Unlock()
				}
				return err
			})
			if err != nil {
				t.Errorf("vote by %s: %v", voter, err)
			}
		}()
	}
	wg.Wait()

	if completes != 1 {
		t.Fatalf("tally completed %d times, want exactly once", completes)
	}

	snap, _ := r.Lookup(code)
	total := 0
	for _, v := range snap.Scores {
		total += v
	}
	if total != n {
		t.Errorf("sum of scores = %d, want %d", total, n)
	}
}

func TestReap(t *testing.T) {
	now := testNow
	r := NewRegistry(WithClock(func() time.Time { return now }))

	stale, _ := r.Create("life", "p1", "One")

	now = now.Add(time.Hour)
	fresh, _ := r.Create("life", "p2", "Two")

	reaped := r.Reap(now.Add(-30 * time.Minute))
	if len(reaped) != 1 || reaped[0].Code != stale {
		t.Fatalf("Reap() = %+v, want only %s", reaped, stale)
	}
	if _, err := r.Lookup(fresh); err != nil {
		t.Errorf("fresh session reaped: %v", err)
	}
	if _, err := r.Lookup(stale); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale session survived: %v", err)
	}
}

func TestRejectedActionsDoNotKeepSessionAlive(t *testing.T) {
	now := testNow
	r := NewRegistry(WithClock(func() time.Time { return now }))

	code, _ := r.Create("life", "p1", "One")
	_, _ = r.Join(code, "p2", "Two")

	now = now.Add(time.Hour)

	rejected := []func(*Session) error{
		func(s *Session) error { return s.CanAdvance("p2", 2) },
		func(s *Session) error { _, err := s.CastVote("zz", "p1"); return err },
		func(s *Session) error { return s.Authorize("p2") },
	}
	for _, fn := range rejected {
		if err := r.Do(code, fn); err == nil {
			t.Fatal("action unexpectedly accepted")
		}
	}

	snap, _ := r.Lookup(code)
	if !snap.LastActive.Equal(testNow) {
		t.Errorf("LastActive = %s, want %s", snap.LastActive, testNow)
	}
	if reaped := r.Reap(now.Add(-30 * time.Minute)); len(reaped) != 1 {
		t.Fatalf("reaped %d sessions, want 1", len(reaped))
	}
}

func TestAcceptedActionRefreshesActivity(t *testing.T) {
	now := testNow
	r := NewRegistry(WithClock(func() time.Time { return now }))

	code, _ := r.Create("life", "p1", "One")

	now = now.Add(time.Hour)
	if err := r.Do(code, func(s *Session) error { return s.Authorize("p1") }); err != nil {
		t.Fatal(err)
	}

	snap, _ := r.Lookup(code)
	if !snap.LastActive.Equal(now) {
		t.Errorf("LastActive = %s, want %s", snap.LastActive, now)
	}
}

// Create, join, play every question, and finish on exhaustion.
func TestFullGame(t *testing.T) {
	const n = 4

	r := NewRegistry()
	e := NewEngine(pool(n))

	code, err := r.Create("life", "P1", "One")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Join(code, "P2", "Two"); err != nil {
		t.Fatal(err)
	}

	for round := 1; round <= n; round++ {
		err := r.Do(code, func(s *Session) error {
			if err := s.CanAdvance("P1", 2); err != nil {
				return err
			}
			out := e.Advance(s)
			if out.Exhausted {
				return fmt.Errorf("round %d: exhausted", round)
			}
			if s.UsedCount() != round {
				return fmt.Errorf("round %d: used = %d", round, s.UsedCount())
			}

			if _, err := s.CastVote("P1", "P2"); err != nil {
				return err
			}
			res, err := s.CastVote("P2", "P1")
			if err != nil {
				return err
			}
			if !res.Complete || res.RoundScores["P1"] != 1 || res.RoundScores["P2"] != 1 {
				return fmt.Errorf("round %d: result %+v", round, res)
			}
			if _, ok := s.Phase().(ClosedRound); !ok {
				return fmt.Errorf("round %d: phase %T", round, s.Phase())
			}

			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		snap, _ := r.Lookup(code)
		if snap.Scores["P1"] != round || snap.Scores["P2"] != round {
			t.Fatalf("after round %d scores = %v", round, snap.Scores)
		}
	}

	var result Result
	err = r.Do(code, func(s *Session) error {
		if out := e.Advance(s); !out.Exhausted {
			return errors.New("expected exhaustion")
		}
		result = s.Finish("", false)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Winner == nil || result.Winner.Player.ID != "P1" {
		t.Fatalf("winner = %+v, want P1 by join order", result.Winner)
	}
	if result.Standings[1].Player.ID != "P2" || result.Rounds != n {
		t.Errorf("standings %+v rounds %d", result.Standings, result.Rounds)
	}
	if _, err := r.Lookup(code); !errors.Is(err, ErrNotFound) {
		t.Error("finished session still registered")
	}
}

func TestCanAdvance(t *testing.T) {
	s := newSession("ABC123", "life", "p1", "One", testNow)

	if err := s.CanAdvance("p2", 2); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-creator: %v", err)
	}
	if err := s.CanAdvance("p1", 2); !errors.Is(err, ErrInsufficientPlayers) {
		t.Errorf("alone: %v", err)
	}

	_ = s.AddPlayer("p2", "Two")
	if err := s.CanAdvance("p1", 2); err != nil {
		t.Errorf("two players: %v", err)
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "abc123", want: "ABC123"},
		{in: "  Q1W2E3\n", want: "Q1W2E3"},
		{in: "ABC12", wantErr: true},
		{in: "ABC1234", wantErr: true},
		{in: "ABC-12", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeCode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeCode(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
