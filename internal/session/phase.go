package session

import "github.com/Seednode/mostlikely/internal/questions"

// State is the coarse lifecycle of a session.
type State int

const (
	WaitingForPlayers State = iota
	InProgress
	Finished
)

func (s State) String() string {
	switch s {
	case WaitingForPlayers:
		return "waiting_for_players"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Phase is the exact position of a session in its lifecycle. Exactly one of
// Lobby, OpenRound, ClosedRound or Ended.
type Phase interface {
	State() State
}

// Lobby accepts joins; no round has been opened yet.
type Lobby struct{}

// OpenRound is collecting votes for Question.
type OpenRound struct {
	Question questions.Question
	Tally    *Tally
}

// ClosedRound has been scored and waits for the creator to continue.
type ClosedRound struct {
	Question    questions.Question
	RoundScores map[string]int
}

// Ended is terminal. The registry drops sessions that reach it.
type Ended struct {
	Result    Result
	Cancelled bool
}

func (Lobby) State() State       { return WaitingForPlayers }
func (OpenRound) State() State   { return InProgress }
func (ClosedRound) State() State { return InProgress }
func (Ended) State() State       { return Finished }
