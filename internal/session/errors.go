package session

import "errors"

var (
	ErrNotFound            = errors.New("game not found")
	ErrAlreadyJoined       = errors.New("already joined")
	ErrNotWaiting          = errors.New("game already started")
	ErrUnauthorized        = errors.New("only the game creator can do that")
	ErrInsufficientPlayers = errors.New("not enough players")
	ErrNotAPlayer          = errors.New("not a player in this round")
	ErrSelfVote            = errors.New("cannot vote for yourself")
	ErrUnknownCandidate    = errors.New("candidate is not in this round")
	ErrNoOpenRound         = errors.New("no round is open")
	ErrCategoryUnknown     = errors.New("unknown category")
	ErrInvalidCode         = errors.New("invalid game code")
	ErrCodeSpace           = errors.New("unable to allocate a unique game code")
)
