package session

import (
	"fmt"
	"maps"
	"time"

	"github.com/Seednode/mostlikely/internal/questions"
)

// Player is a participant, identified by the transport-provided id.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session holds all mutable state of one game. It is not safe for concurrent
// use on its own; the Registry serializes access.
type Session struct {
	code      string
	category  string
	creatorID string

	players []Player
	scores  map[string]int

	round int
	used  map[string]struct{}
	phase Phase

	createdAt  time.Time
	lastActive time.Time
}

func newSession(code, category, creatorID, creatorName string, now time.Time) *Session {
	return &Session{
		code:       code,
		category:   category,
		creatorID:  creatorID,
		players:    []Player{{ID: creatorID, Name: creatorName}},
		scores:     map[string]int{creatorID: 0},
		used:       make(map[string]struct{}),
		phase:      Lobby{},
		createdAt:  now,
		lastActive: now,
	}
}

func (s *Session) Code() string      { return s.code }
func (s *Session) Category() string  { return s.category }
func (s *Session) CreatorID() string { return s.creatorID }
func (s *Session) Round() int        { return s.round }
func (s *Session) Phase() Phase      { return s.phase }
func (s *Session) State() State      { return s.phase.State() }

// Players returns the players in join order.
func (s *Session) Players() []Player {
	out := make([]Player, len(s.players))
	copy(out, s.players)

	return out
}

func (s *Session) PlayerIDs() []string {
	ids := make([]string, len(s.players))
	for i, p := range s.players {
		ids[i] = p.ID
	}

	return ids
}

func (s *Session) HasPlayer(id string) bool {
	_, ok := s.scores[id]

	return ok
}

func (s *Session) PlayerName(id string) string {
	for _, p := range s.players {
		if p.ID == id {
			return p.Name
		}
	}

	return ""
}

func (s *Session) Score(id string) int {
	return s.scores[id]
}

func (s *Session) Scores() map[string]int {
	return maps.Clone(s.scores)
}

// UsedCount is the number of questions served so far, skipped ones included.
func (s *Session) UsedCount() int {
	return len(s.used)
}

func (s *Session) IsUsed(questionID string) bool {
	_, ok := s.used[questionID]

	return ok
}

func (s *Session) IsCreator(id string) bool {
	return id == s.creatorID
}

// AddPlayer seats a new player. Only possible while the session is in the lobby.
func (s *Session) AddPlayer(id, name string) error {
	if _, ok := s.scores[id]; ok {
		return ErrAlreadyJoined
	}
	if s.State() != WaitingForPlayers {
		return ErrNotWaiting
	}

	s.players = append(s.players, Player{ID: id, Name: name})
	s.scores[id] = 0

	return nil
}

// Authorize fails unless actorID created the session.
func (s *Session) Authorize(actorID string) error {
	if actorID != s.creatorID {
		return ErrUnauthorized
	}

	return nil
}

// CanAdvance checks that actorID may open the next round.
func (s *Session) CanAdvance(actorID string, minPlayers int) error {
	if err := s.Authorize(actorID); err != nil {
		return err
	}
	if s.State() == Finished {
		return ErrNotFound
	}
	if len(s.players) < minPlayers {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientPlayers, len(s.players), minPlayers)
	}

	return nil
}

// openRound marks q used and starts a fresh tally over the current players.
func (s *Session) openRound(q questions.Question) int {
	s.used[q.ID] = struct{}{}
	s.round++
	s.phase = OpenRound{
		Question: q,
		Tally:    OpenTally(s.PlayerIDs()),
	}

	return s.round
}

// VoteResult describes the tally after an accepted vote.
type VoteResult struct {
	Round      int
	Votes      int
	Candidates int
	Complete   bool

	// RoundScores is set once the round completes.
	RoundScores map[string]int
}

// CastVote records a vote in the open round. When the vote completes the
// tally, every player's score grows by the votes they received and the round
// closes.
func (s *Session) CastVote(voterID, candidateID string) (VoteResult, error) {
	if !s.HasPlayer(voterID) {
		return VoteResult{}, ErrNotAPlayer
	}

	open, ok := s.phase.(OpenRound)
	if !ok {
		return VoteResult{}, ErrNoOpenRound
	}

	complete, err := open.Tally.Cast(voterID, candidateID)
	if err != nil {
		return VoteResult{}, err
	}

	res := VoteResult{
		Round:      s.round,
		Votes:      open.Tally.Votes(),
		Candidates: len(open.Tally.Candidates()),
		Complete:   complete,
	}

	if complete {
		res.RoundScores = s.scoreRound(open.Tally)
		s.phase = ClosedRound{
			Question:    open.Question,
			RoundScores: maps.Clone(res.RoundScores),
		}
	}

	return res, nil
}

func (s *Session) scoreRound(t *Tally) map[string]int {
	counts := t.Counts()

	round := make(map[string]int, len(s.players))
	for _, p := range s.players {
		round[p.ID] = counts[p.ID]
		s.scores[p.ID] += counts[p.ID]
	}

	return round
}

// Finish ranks the players and ends the session. Calling it again returns the
// first result.
func (s *Session) Finish(prize string, hasPrize bool) Result {
	if ended, ok := s.phase.(Ended); ok {
		return ended.Result
	}

	res := Result{
		Standings: Rank(s.players, s.scores),
		Rounds:    s.round,
	}
	if len(res.Standings) > 0 {
		winner := res.Standings[0]
		res.Winner = &winner
	}
	if hasPrize {
		res.Prize = prize
	}

	s.phase = Ended{Result: res}

	return res
}

// Cancel ends the session without results.
func (s *Session) Cancel() {
	if _, ok := s.phase.(Ended); ok {
		return
	}

	s.phase = Ended{Cancelled: true}
}

// Snapshot is a detached copy of a session for readers outside the lock.
type Snapshot struct {
	Code      string
	Category  string
	CreatorID string
	Players   []Player
	Scores    map[string]int
	State     State
	Round     int
	Used      int

	// Question and Pending are set while a round is open.
	Question *questions.Question
	Pending  []string
	Votes    int

	CreatedAt  time.Time
	LastActive time.Time
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Code:       s.code,
		Category:   s.category,
		CreatorID:  s.creatorID,
		Players:    s.Players(),
		Scores:     s.Scores(),
		State:      s.State(),
		Round:      s.round,
		Used:       len(s.used),
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
	}

	switch p := s.phase.(type) {
	case OpenRound:
		q := p.Question
		snap.Question = &q
		snap.Pending = p.Tally.Pending()
		snap.Votes = p.Tally.Votes()
	case ClosedRound:
		q := p.Question
		snap.Question = &q
	}

	return snap
}

// PlayerIDs returns the ids of the snapshot's players in join order.
func (s Snapshot) PlayerIDs() []string {
	ids := make([]string, len(s.Players))
	for i, p := range s.Players {
		ids[i] = p.ID
	}

	return ids
}

func (s Snapshot) HasPlayer(id string) bool {
	_, ok := s.Scores[id]

	return ok
}
