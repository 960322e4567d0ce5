package play

import (
	"errors"

	"github.com/Seednode/mostlikely/internal/session"
)

// Describe turns an action error into text for the acting participant.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrNotFound):
		return "No game with that code is running."
	case errors.Is(err, session.ErrInvalidCode):
		return "Game codes are 6 letters or digits."
	case errors.Is(err, session.ErrAlreadyJoined):
		return "You are already in this game."
	case errors.Is(err, session.ErrNotWaiting):
		return "This game has already started."
	case errors.Is(err, session.ErrUnauthorized):
		return "Only the creator of the game can do that."
	case errors.Is(err, session.ErrInsufficientPlayers):
		return "More players need to join before a round can start."
	case errors.Is(err, session.ErrNotAPlayer):
		return "You are not playing in this round."
	case errors.Is(err, session.ErrSelfVote):
		return "You cannot vote for yourself."
	case errors.Is(err, session.ErrUnknownCandidate):
		return "That player is not part of this round."
	case errors.Is(err, session.ErrNoOpenRound):
		return "There is no question to vote on right now."
	case errors.Is(err, session.ErrCategoryUnknown):
		return "That category does not exist."
	case errors.Is(err, ErrNameRequired):
		return "Please enter a name first."
	default:
		return "Something went wrong. Please try again."
	}
}

// ErrorMessage wraps Describe in a message for the actor.
func ErrorMessage(err error) Message {
	return Message{Kind: KindError, Text: Describe(err)}
}
