package repository

import "errors"

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyQueued     = errors.New("player already has a waiting queue entry")
	ErrDuplicateRound    = errors.New("round already recorded")
	ErrDuplicateVote     = errors.New("vote already cast")
	ErrNoServerAvailable = errors.New("no available game server")
	ErrServerExists      = errors.New("game server address already registered")
)
