package keeper

import "errors"

var (
	// ErrAlreadyJoined is returned by Join when sessionID already has a
	// player registered on this land.
	ErrAlreadyJoined = errors.New("keeper: session already joined")
	// ErrNotJoined is returned by HandleClientEvent when sessionID has no
	// registered player.
	ErrNotJoined = errors.New("keeper: session not joined")
	// ErrUnregisteredEvent is returned by HandleClientEvent when no rule
	// is registered for the event's type.
	ErrUnregisteredEvent = errors.New("keeper: event type not registered")
)
