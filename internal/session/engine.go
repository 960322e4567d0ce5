package session

import (
	"math/rand/v2"

	"github.com/Seednode/mostlikely/internal/questions"
)

// QuestionSource serves the questions of a category that a session has not
// used yet. Implementations must not modify used.
type QuestionSource interface {
	UnusedQuestions(category string, used map[string]struct{}) []questions.Question
}

// Outcome is the result of advancing a session: either a new round opened on
// Question, or the pool is exhausted.
type Outcome struct {
	Exhausted bool
	Question  questions.Question
	Round     int
}

// Engine moves sessions from one round to the next.
type Engine struct {
	source QuestionSource
	intn   func(n int) int
}

func NewEngine(source QuestionSource) *Engine {
	return &Engine{
		source: source,
		intn:   rand.IntN,
	}
}

// Advance opens the next round on s with a question picked uniformly from the
// unused pool. Authorization and player count are the caller's concern. Any
// open round is abandoned unscored; its question stays used.
func (e *Engine) Advance(s *Session) Outcome {
	pool := e.source.UnusedQuestions(s.category, s.used)

	// Guard against sources that ignore the used set.
	avail := pool[:0:0]
	for _, q := range pool {
		if !s.IsUsed(q.ID) {
			avail = append(avail, q)
		}
	}

	if len(avail) == 0 {
		return Outcome{Exhausted: true, Round: s.round}
	}

	q := avail[e.intn(len(avail))]
	round := s.openRound(q)

	return Outcome{Question: q, Round: round}
}
