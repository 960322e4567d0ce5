// Package play turns participant actions into session mutations and fans the
// results out through a Notifier. Mutation and delivery both happen under the
// registry's per-session lock, so every player sees one session's messages in
// the order its state changed. Notifiers must therefore not block for long.
package play

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Seednode/mostlikely/internal/questions"
	"github.com/Seednode/mostlikely/internal/session"
)

const (
	// DefaultMinPlayers is the smallest party that can open a round.
	DefaultMinPlayers = 2

	maxNameLength = 32
)

var ErrNameRequired = errors.New("a display name is required")

// Bank is the question bank as seen by the service.
type Bank interface {
	session.QuestionSource
	IsCategoryKnown(id string) bool
	Category(id string) (questions.Category, bool)
	Categories() []questions.Category
	Len(category string) int
}

type PrizeSource interface {
	RandomPrize(category string) (string, bool)
}

type Options struct {
	// MinPlayers below DefaultMinPlayers is raised to it.
	MinPlayers int

	// SendLimit bounds concurrent deliveries per broadcast; 0 means unbounded.
	SendLimit int

	Logf func(format string, args ...any)
}

type Service struct {
	registry *session.Registry
	engine   *session.Engine
	bank     Bank
	prizes   PrizeSource
	notifier Notifier

	minPlayers int
	sendLimit  int
	logf       func(string, ...any)
}

func NewService(reg *session.Registry, bank Bank, prizes PrizeSource, n Notifier, opts Options) *Service {
	s := &Service{
		registry:   reg,
		engine:     session.NewEngine(bank),
		bank:       bank,
		prizes:     prizes,
		notifier:   n,
		minPlayers: max(opts.MinPlayers, DefaultMinPlayers),
		sendLimit:  opts.SendLimit,
		logf:       opts.Logf,
	}
	if s.logf == nil {
		s.logf = func(string, ...any) {}
	}

	return s
}

// delivery is one fan-out prepared under the session lock. msgFor must only
// use values copied out of the session.
type delivery struct {
	ids    []string
	msgFor func(id string) Message
}

type outbox []delivery

func (o *outbox) to(id string, msg Message) {
	*o = append(*o, delivery{
		ids:    []string{id},
		msgFor: func(string) Message { return msg },
	})
}

func (o *outbox) all(ids []string, msgFor func(id string) Message) {
	*o = append(*o, delivery{ids: ids, msgFor: msgFor})
}

func (s *Service) flush(ctx context.Context, o outbox) {
	for _, d := range o {
		SendToAll(ctx, s.notifier, d.ids, s.sendLimit, d.msgFor, s.logf)
	}
}

// within runs fn under the session lock and delivers its outbox before the
// lock is released. Nothing is delivered when fn fails.
func (s *Service) within(ctx context.Context, code string, fn func(*session.Session, *outbox) error) error {
	code, err := session.NormalizeCode(code)
	if err != nil {
		return err
	}

	return s.registry.Do(code, func(sess *session.Session) error {
		var out outbox
		if err := fn(sess, &out); err != nil {
			return err
		}

		s.flush(ctx, out)

		return nil
	})
}

func (s *Service) reply(ctx context.Context, playerID string, msg Message) {
	if err := s.notifier.SendToPlayer(ctx, playerID, msg); err != nil {
		s.logf("NOTIFY: Delivery to %s failed: %v", playerID, err)
	}
}

func cleanName(name string) (string, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", ErrNameRequired
	}

	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}

	return name, nil
}

func (s *Service) categoryName(id string) string {
	if c, ok := s.bank.Category(id); ok {
		return c.Name
	}

	return id
}

// Categories lists the playable categories in catalog order.
func (s *Service) Categories() []CategoryView {
	cats := s.bank.Categories()

	out := make([]CategoryView, len(cats))
	for i, c := range cats {
		out[i] = CategoryView{ID: c.ID, Name: c.Name, Description: c.Description}
	}

	return out
}

// MinPlayers is the configured minimum party size for opening a round.
func (s *Service) MinPlayers() int {
	return s.minPlayers
}

func playerViews(players []session.Player, scores map[string]int) []PlayerView {
	out := make([]PlayerView, len(players))
	for i, p := range players {
		out[i] = PlayerView{ID: p.ID, Name: p.Name}
		if scores != nil {
			score := scores[p.ID]
			out[i].Score = &score
		}
	}

	return out
}

func (s *Service) lobbyChoices(players int) []Choice {
	var choices []Choice
	if players >= s.minPlayers {
		choices = append(choices, Choice{Label: "Start the game", Action: ActionAdvance})
	}

	return append(choices, Choice{Label: "Cancel the game", Action: ActionCancel})
}

// Create opens a new session in category with the actor as creator and
// returns its code.
func (s *Service) Create(ctx context.Context, category, actorID, actorName string) (string, error) {
	name, err := cleanName(actorName)
	if err != nil {
		return "", err
	}

	category = strings.TrimSpace(category)
	if !s.bank.IsCategoryKnown(category) {
		return "", fmt.Errorf("%w: %q", session.ErrCategoryUnknown, category)
	}
	cat, _ := s.bank.Category(category)

	code, err := s.registry.Create(cat.ID, actorID, name)
	if err != nil {
		return "", err
	}

	s.logf("GAMES: %q created %s in %s", name, code, cat.ID)

	s.reply(ctx, actorID, Message{
		Kind:     KindCreated,
		Text:     fmt.Sprintf("Game created in %s. Share the code %s so others can join.", cat.Name, code),
		Code:     code,
		Category: cat.Name,
		Players:  []PlayerView{{ID: actorID, Name: name}},
		Choices:  s.lobbyChoices(1),
	})

	return code, nil
}

// Join adds the actor to a session that has not started yet.
func (s *Service) Join(ctx context.Context, code, actorID, actorName string) error {
	code, err := session.NormalizeCode(code)
	if err != nil {
		return err
	}

	name, err := cleanName(actorName)
	if err != nil {
		return err
	}

	return s.within(ctx, code, func(sess *session.Session, out *outbox) error {
		if err := sess.AddPlayer(actorID, name); err != nil {
			return err
		}

		s.logf("GAMES: %q joined %s", name, code)

		cat := s.categoryName(sess.Category())
		players := playerViews(sess.Players(), nil)
		count := len(players)

		out.to(actorID, Message{
			Kind:     KindJoined,
			Text:     fmt.Sprintf("You joined game %s (%s). Waiting for the creator to start.", code, cat),
			Code:     code,
			Category: cat,
			Players:  players,
		})

		others := make([]string, 0, count-1)
		for _, id := range sess.PlayerIDs() {
			if id != actorID {
				others = append(others, id)
			}
		}

		creator := sess.CreatorID()
		choices := s.lobbyChoices(count)

		out.all(others, func(id string) Message {
			msg := Message{
				Kind:     KindLobby,
				Text:     fmt.Sprintf("%s joined. %d players in the game.", name, count),
				Code:     code,
				Category: cat,
				Players:  players,
			}
			if id == creator {
				msg.Choices = choices
			}
			return msg
		})

		return nil
	})
}

// Advance opens the next round. Only the creator may advance, and only with
// enough players. An open round is abandoned unscored. When the category is
// used up the session finishes instead.
func (s *Service) Advance(ctx context.Context, code, actorID string) error {
	return s.advance(ctx, code, actorID, false)
}

// Skip abandons the open round and opens the next one.
func (s *Service) Skip(ctx context.Context, code, actorID string) error {
	return s.advance(ctx, code, actorID, true)
}

func (s *Service) advance(ctx context.Context, code, actorID string, skip bool) error {
	code, err := session.NormalizeCode(code)
	if err != nil {
		return err
	}

	return s.within(ctx, code, func(sess *session.Session, out *outbox) error {
		if err := sess.CanAdvance(actorID, s.minPlayers); err != nil {
			return err
		}

		if skip {
			if _, ok := sess.Phase().(session.OpenRound); !ok {
				return session.ErrNoOpenRound
			}
		}

		outcome := s.engine.Advance(sess)
		if outcome.Exhausted {
			s.finishLocked(sess, out, "All questions in this category have been played.")
			return nil
		}

		s.questionLocked(sess, outcome, skip, out)

		return nil
	})
}

func (s *Service) questionLocked(sess *session.Session, outcome session.Outcome, skipped bool, out *outbox) {
	code := sess.Code()
	cat := s.categoryName(sess.Category())
	players := sess.Players()
	views := playerViews(players, nil)
	creator := sess.CreatorID()
	remaining := max(s.bank.Len(sess.Category())-sess.UsedCount(), 0)

	q := &QuestionView{
		Number:   outcome.Round,
		Prompt:   outcome.Question.Prompt,
		Guidance: outcome.Question.Guidance,
	}

	text := fmt.Sprintf("Question #%d", outcome.Round)
	if skipped {
		text = "Question skipped. " + text
	}

	s.logf("GAMES: %s opened round %d with %s", code, outcome.Round, outcome.Question.ID)

	out.all(sess.PlayerIDs(), func(id string) Message {
		choices := make([]Choice, 0, len(players)+2)
		for _, p := range players {
			if p.ID == id {
				continue
			}
			choices = append(choices, Choice{Label: p.Name, Action: ActionVote, Target: p.ID})
		}
		if id == creator {
			choices = append(choices,
				Choice{Label: "Skip question", Action: ActionSkip},
				Choice{Label: "Finish game", Action: ActionFinish},
			)
		}

		return Message{
			Kind:      KindQuestion,
			Text:      text,
			Code:      code,
			Category:  cat,
			Round:     outcome.Round,
			Remaining: &remaining,
			Question:  q,
			Players:   views,
			Choices:   choices,
		}
	})
}

// Vote records the actor's vote in the open round. When it is the last
// missing vote the round is scored and every player is told it is complete.
func (s *Service) Vote(ctx context.Context, code, actorID, candidateID string) error {
	code, err := session.NormalizeCode(code)
	if err != nil {
		return err
	}

	return s.within(ctx, code, func(sess *session.Session, out *outbox) error {
		res, err := sess.CastVote(actorID, candidateID)
		if err != nil {
			return err
		}

		out.to(actorID, Message{
			Kind:  KindVoteRecorded,
			Text:  fmt.Sprintf("Vote for %s recorded (%d of %d voted).", sess.PlayerName(candidateID), res.Votes, res.Candidates),
			Code:  code,
			Round: res.Round,
		})

		if !res.Complete {
			return nil
		}

		s.logf("GAMES: %s completed round %d", code, res.Round)

		creator := sess.CreatorID()
		out.all(sess.PlayerIDs(), func(id string) Message {
			msg := Message{
				Kind:  KindRoundComplete,
				Text:  fmt.Sprintf("Round %d complete, everyone has voted.", res.Round),
				Code:  code,
				Round: res.Round,
			}
			if id == creator {
				msg.Text += " Continue?"
				msg.Choices = []Choice{
					{Label: "Next question", Action: ActionAdvance},
					{Label: "Finish game", Action: ActionFinish},
				}
			} else {
				msg.Text += " Waiting for the creator."
			}
			return msg
		})

		return nil
	})
}

// Finish ends the session on the creator's request and broadcasts the ranking.
func (s *Service) Finish(ctx context.Context, code, actorID string) error {
	code, err := session.NormalizeCode(code)
	if err != nil {
		return err
	}

	return s.within(ctx, code, func(sess *session.Session, out *outbox) error {
		if err := sess.Authorize(actorID); err != nil {
			return err
		}

		s.finishLocked(sess, out, "The creator ended the game.")

		return nil
	})
}

func (s *Service) finishLocked(sess *session.Session, out *outbox, reason string) {
	var (
		prize    string
		hasPrize bool
	)
	if s.prizes != nil {
		prize, hasPrize = s.prizes.RandomPrize(sess.Category())
	}

	res := sess.Finish(prize, hasPrize)

	ranking := make([]StandingView, len(res.Standings))
	for i, st := range res.Standings {
		ranking[i] = StandingView{
			Position: st.Position,
			Label:    st.Label,
			Name:     st.Player.Name,
			Score:    st.Score,
		}
	}

	text := reason + " Game over."
	if res.Winner != nil {
		text += fmt.Sprintf(" %s wins with %d points.", res.Winner.Player.Name, res.Winner.Score)
	}
	if res.Prize != "" {
		text += " Prize: " + res.Prize
	}

	code := sess.Code()
	msg := Message{
		Kind:     KindResults,
		Text:     text,
		Code:     code,
		Category: s.categoryName(sess.Category()),
		Round:    res.Rounds,
		Ranking:  ranking,
		Prize:    res.Prize,
	}

	s.logf("GAMES: %s finished after %d rounds", code, res.Rounds)

	out.all(sess.PlayerIDs(), func(string) Message { return msg })
}

// Cancel removes the session on the creator's request without results.
func (s *Service) Cancel(ctx context.Context, code, actorID string) error {
	code, err := session.NormalizeCode(code)
	if err != nil {
		return err
	}

	return s.within(ctx, code, func(sess *session.Session, out *outbox) error {
		if err := sess.Authorize(actorID); err != nil {
			return err
		}

		sess.Cancel()
		s.logf("GAMES: %s cancelled", code)

		msg := Message{
			Kind: KindCancelled,
			Text: fmt.Sprintf("Game %s was cancelled by its creator.", code),
			Code: code,
		}
		out.all(sess.PlayerIDs(), func(string) Message { return msg })

		return nil
	})
}

// Status sends the actor a read-only summary of the session.
func (s *Service) Status(ctx context.Context, code, actorID string) error {
	code, err := session.NormalizeCode(code)
	if err != nil {
		return err
	}

	return s.within(ctx, code, func(sess *session.Session, out *outbox) error {
		if !sess.HasPlayer(actorID) {
			return session.ErrNotAPlayer
		}

		out.to(actorID, s.statusMessage(sess.Snapshot()))

		return nil
	})
}

func (s *Service) statusMessage(snap session.Snapshot) Message {
	remaining := max(s.bank.Len(snap.Category)-snap.Used, 0)

	views := playerViews(snap.Players, snap.Scores)
	pending := make(map[string]bool, len(snap.Pending))
	for _, id := range snap.Pending {
		pending[id] = true
	}
	if snap.Question != nil && len(snap.Pending) > 0 {
		for i := range views {
			views[i].Voted = !pending[views[i].ID]
		}
	}

	msg := Message{
		Kind:      KindStatus,
		Text:      fmt.Sprintf("Round %d, %d questions played, %d left.", snap.Round, snap.Used, remaining),
		Code:      snap.Code,
		Category:  s.categoryName(snap.Category),
		Round:     snap.Round,
		Remaining: &remaining,
		Players:   views,
	}
	if snap.Question != nil {
		msg.Question = &QuestionView{
			Number:   snap.Round,
			Prompt:   snap.Question.Prompt,
			Guidance: snap.Question.Guidance,
		}
	}

	return msg
}

// Expire removes sessions idle since before cutoff and tells their players.
func (s *Service) Expire(ctx context.Context, cutoff time.Time) int {
	reaped := s.registry.Reap(cutoff)

	for _, snap := range reaped {
		s.logf("GAMES: %s expired after inactivity", snap.Code)

		msg := Message{
			Kind: KindExpired,
			Text: fmt.Sprintf("Game %s ended after a long period of inactivity.", snap.Code),
			Code: snap.Code,
		}
		SendToAll(ctx, s.notifier, snap.PlayerIDs(), s.sendLimit, func(string) Message { return msg }, s.logf)
	}

	return len(reaped)
}

// SessionInfo is the greeting sent to a freshly connected client.
func (s *Service) SessionInfo() Message {
	return Message{
		Kind:       KindSessionInfo,
		Text:       "Create a game or join one with its code.",
		Categories: s.Categories(),
	}
}
