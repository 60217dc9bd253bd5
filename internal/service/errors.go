package service

import (
	"errors"
	"fmt"

	"github.com/rl-arena/ranked-orchestrator/internal/repository"
)

// Code classifies failures for callers.
type Code string

const (
	CodeValidation      Code = "VALIDATION"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeStateConflict   Code = "STATE_CONFLICT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeExternalFailure Code = "EXTERNAL_FAILURE"
	CodeRaceLost        Code = "RACE_LOST"
	CodeInternal        Code = "INTERNAL"
)

// Retryable reports whether repeating the same call may succeed.
func (c Code) Retryable() bool {
	return c == CodeRaceLost || c == CodeExternalFailure
}

// Error carries a Code alongside the cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrAlreadyProcessed is the outcome of a repeated or superseded operation.
// It is a successful no-op, not a failure.
var ErrAlreadyProcessed = errors.New("already processed")

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("resource not found")
)

// Queue
var (
	ErrBanned           = errors.New("player is banned")
	ErrAlreadyQueued    = errors.New("player is already queued")
	ErrInActiveMatch    = errors.New("player is already in an active match")
	ErrNotQueued        = errors.New("player is not queued")
	ErrNotEnoughPlayers = errors.New("not enough players to form a match")
	ErrRaceLost         = errors.New("queue entries changed during formation")
)

// Match
var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrNotInMatch     = errors.New("player is not part of this match")
	ErrInvalidState   = errors.New("operation not valid in the current match state")
	ErrInvalidMap     = errors.New("map is not in the pool")
	ErrAlreadyVoted   = errors.New("vote already cast")
	ErrServerMismatch = errors.New("match is not assigned to this server")
	ErrNoAssignment   = errors.New("server has no assigned match")
)

// Provisioning and bans
var (
	ErrServerNotFound = errors.New("server not found")
	ErrServerExists   = errors.New("server address already registered")
	ErrRemoteConsole  = errors.New("remote console failure")
	ErrBanNotFound    = errors.New("ban not found")
	ErrUnknownEvent   = errors.New("unknown player event")
)

var sentinelCodes = []struct {
	err  error
	code Code
}{
	{ErrInvalidInput, CodeValidation},
	{ErrInvalidMap, CodeValidation},
	{ErrNotInMatch, CodeValidation},
	{ErrUnknownEvent, CodeValidation},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrServerMismatch, CodeUnauthorized},
	{ErrBanned, CodeStateConflict},
	{ErrAlreadyQueued, CodeStateConflict},
	{ErrInActiveMatch, CodeStateConflict},
	{ErrNotEnoughPlayers, CodeStateConflict},
	{ErrInvalidState, CodeStateConflict},
	{ErrAlreadyVoted, CodeStateConflict},
	{ErrServerExists, CodeStateConflict},
	{ErrNotFound, CodeNotFound},
	{ErrNotQueued, CodeNotFound},
	{ErrMatchNotFound, CodeNotFound},
	{ErrNoAssignment, CodeNotFound},
	{ErrServerNotFound, CodeNotFound},
	{ErrBanNotFound, CodeNotFound},
	{repository.ErrNotFound, CodeNotFound},
	{ErrRemoteConsole, CodeExternalFailure},
	{ErrRaceLost, CodeRaceLost},
}

// CodeOf classifies err. Unknown errors are INTERNAL.
func CodeOf(err error) Code {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return CodeInternal
}

func notFoundAs(err, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return err
}
