// Package session implements the game core: the registry of live sessions,
// per-session state, vote tallies, round advancement and final ranking.
package session

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const shardCount = 16

// Registry is the directory of live sessions keyed by game code. Each session
// has its own lock, so operations on different codes only share a brief
// directory lookup.
type Registry struct {
	shards  [shardCount]shard
	newCode func() (string, error)
	now     func() time.Time
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	s    *Session
	gone bool
}

type Option func(*Registry)

// WithCodeGenerator replaces GenerateCode.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(r *Registry) { r.newCode = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(r *Registry) { r.now = fn }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		newCode: GenerateCode,
		now:     time.Now,
	}
	for i := range r.shards {
		r.shards[i].sessions = make(map[string]*entry)
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Registry) shardFor(code string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))

	return &r.shards[h.Sum32()%shardCount]
}

func (r *Registry) entry(code string) *entry {
	sh := r.shardFor(code)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	return sh.sessions[code]
}

// Create registers a new session in the lobby with the creator as its only
// player, and returns its code.
func (r *Registry) Create(category, creatorID, creatorName string) (string, error) {
	for range maxCodeAttempts {
		code, err := r.newCode()
		if err != nil {
			return "", err
		}
		code = canonical(code)

		sh := r.shardFor(code)

		sh.mu.Lock()
		if _, exists := sh.sessions[code]; exists {
			sh.mu.Unlock()
			continue
		}
		sh.sessions[code] = &entry{s: newSession(code, category, creatorID, creatorName, r.now())}
		sh.mu.Unlock()

		return code, nil
	}

	return "", fmt.Errorf("%w after %d attempts", ErrCodeSpace, maxCodeAttempts)
}

// Do runs fn with exclusive access to the session. Sessions that fn leaves in
// the Ended phase are removed before Do returns, whatever fn returned. Only a
// successful fn counts as activity for Reap.
func (r *Registry) Do(code string, fn func(*Session) error) error {
	code = canonical(code)

	e := r.entry(code)
	if e == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return ErrNotFound
	}

	err := fn(e.s)
	if err == nil {
		e.s.lastActive = r.now()
	}

	if e.s.State() == Finished {
		r.dropLocked(code, e)
	}

	return err
}

// dropLocked removes e from the directory. e.mu must be held.
func (r *Registry) dropLocked(code string, e *entry) {
	e.gone = true

	sh := r.shardFor(code)

	sh.mu.Lock()
	if sh.sessions[code] == e {
		delete(sh.sessions, code)
	}
	sh.mu.Unlock()
}

func (r *Registry) Lookup(code string) (Snapshot, error) {
	var snap Snapshot

	err := r.view(code, func(s *Session) {
		snap = s.Snapshot()
	})

	return snap, err
}

// view runs fn under the session lock without touching its activity time.
func (r *Registry) view(code string, fn func(*Session)) error {
	e := r.entry(canonical(code))
	if e == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return ErrNotFound
	}

	fn(e.s)

	return nil
}

// Join adds a player to a session that is still in the lobby and returns the
// session as it stands after the join.
func (r *Registry) Join(code, playerID, playerName string) (Snapshot, error) {
	var snap Snapshot

	err := r.Do(code, func(s *Session) error {
		if err := s.AddPlayer(playerID, playerName); err != nil {
			return err
		}
		snap = s.Snapshot()

		return nil
	})

	return snap, err
}

// Remove deletes the session. It reports whether this call removed it;
// removing an absent code is a no-op.
func (r *Registry) Remove(code string) bool {
	code = canonical(code)

	e := r.entry(code)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gone {
		return false
	}

	r.dropLocked(code, e)

	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}

	return n
}

// Reap removes every session idle since before cutoff and returns their final
// snapshots.
func (r *Registry) Reap(cutoff time.Time) []Snapshot {
	type candidate struct {
		code string
		e    *entry
	}

	var all []candidate
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for code, e := range sh.sessions {
			all = append(all, candidate{code: code, e: e})
		}
		sh.mu.Unlock()
	}

	var reaped []Snapshot
	for _, c := range all {
		c.e.mu.Lock()
		if !c.e.gone && c.e.s.lastActive.Before(cutoff) {
			reaped = append(reaped, c.e.s.Snapshot())
			r.dropLocked(c.code, c.e)
		}
		c.e.mu.Unlock()
	}

	return reaped
}
