package play

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Kind tags an outgoing message so clients can pick a view.
type Kind string

const (
	KindSessionInfo   Kind = "session_info"
	KindCreated       Kind = "created"
	KindJoined        Kind = "joined"
	KindLobby         Kind = "lobby"
	KindQuestion      Kind = "question"
	KindVoteRecorded  Kind = "vote_recorded"
	KindRoundComplete Kind = "round_complete"
	KindResults       Kind = "results"
	KindCancelled     Kind = "cancelled"
	KindExpired       Kind = "expired"
	KindStatus        Kind = "status"
	KindError         Kind = "error"
)

// Action names carried by choices, matching the inbound action types.
const (
	ActionAdvance = "advance"
	ActionVote    = "vote"
	ActionSkip    = "skip"
	ActionFinish  = "finish"
	ActionCancel  = "cancel"
	ActionStatus  = "status"
)

// Choice is an action a recipient can take from a message.
type Choice struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

type PlayerView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score *int   `json:"score,omitempty"`
	Voted bool   `json:"voted,omitempty"`
}

type QuestionView struct {
	Number   int    `json:"number"`
	Prompt   string `json:"prompt"`
	Guidance string `json:"guidance"`
}

type StandingView struct {
	Position int    `json:"position"`
	Label    string `json:"label"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

type CategoryView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Message is a rendered notification for one recipient.
type Message struct {
	Kind       Kind           `json:"kind"`
	Text       string         `json:"text"`
	Code       string         `json:"code,omitempty"`
	Category   string         `json:"category,omitempty"`
	Round      int            `json:"round,omitempty"`
	Remaining  *int           `json:"remaining,omitempty"`
	Question   *QuestionView  `json:"question,omitempty"`
	Players    []PlayerView   `json:"players,omitempty"`
	Ranking    []StandingView `json:"ranking,omitempty"`
	Prize      string         `json:"prize,omitempty"`
	Categories []CategoryView `json:"categories,omitempty"`
	Choices    []Choice       `json:"choices,omitempty"`
}

// Notifier delivers messages to one participant. Delivery is best effort: an
// error only concerns that recipient.
type Notifier interface {
	SendToPlayer(ctx context.Context, playerID string, msg Message) error
}

// SendToAll delivers a per-recipient message to every id concurrently, at most
// limit at a time (no limit when limit <= 0). Failures are logged and dropped.
func SendToAll(ctx context.Context, n Notifier, ids []string, limit int, msgFor func(id string) Message, logf func(string, ...any)) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, id := range ids {
		msg := msgFor(id)
		g.Go(func() error {
			if err := n.SendToPlayer(ctx, id, msg); err != nil && logf != nil {
				logf("NOTIFY: Delivery to %s failed: %v", id, err)
			}
			return nil
		})
	}

	_ = g.Wait()
}
