package models

import (
	"errors"
	"fmt"
	"time"
)

// PlayerEvent is a connection-lifecycle notification from a hosting instance.
// The set of implementations is closed; handlers switch exhaustively over
// PlayerDisconnected, PlayerCrashed, PlayerConnected and PlayerNoJoinTimeout.
type PlayerEvent interface {
	Player() string
	Match() string
	isPlayerEvent()
}

type playerEventBase struct {
	PlayerID string
	MatchID  string
}

func (b playerEventBase) Player() string { return b.PlayerID }
func (b playerEventBase) Match() string  { return b.MatchID }
func (playerEventBase) isPlayerEvent()  {}

// PlayerDisconnected is an explicit, clean disconnect.
type PlayerDisconnected struct {
	playerEventBase
	Reason string
}

// PlayerCrashed is a timeout or client crash.
type PlayerCrashed struct {
	playerEventBase
	Reason string
}

type PlayerConnected struct {
	playerEventBase
}

// PlayerNoJoinTimeout means the player was assigned but never connected.
type PlayerNoJoinTimeout struct {
	playerEventBase
}

// Wire names of player events.
const (
	EventPlayerDisconnect = "PLAYER_DISCONNECT"
	EventPlayerCrash      = "PLAYER_CRASH"
	EventPlayerConnect    = "PLAYER_CONNECT"
	EventNoJoinTimeout    = "NO_JOIN_TIMEOUT"
)

var ErrUnknownEventType = errors.New("unknown player event type")

type PlayerEventRequest struct {
	Type     string `json:"type" binding:"required"`
	PlayerID string `json:"playerId" binding:"required"`
	MatchID  string `json:"matchId"`
	Reason   string `json:"reason"`
}

// ParsePlayerEvent maps a wire request onto its variant.
func ParsePlayerEvent(req PlayerEventRequest) (PlayerEvent, error) {
	base := playerEventBase{PlayerID: req.PlayerID, MatchID: req.MatchID}
	switch req.Type {
	case EventPlayerDisconnect:
		return PlayerDisconnected{playerEventBase: base, Reason: req.Reason}, nil
	case EventPlayerCrash:
		return PlayerCrashed{playerEventBase: base, Reason: req.Reason}, nil
	case EventPlayerConnect:
		return PlayerConnected{playerEventBase: base}, nil
	case EventNoJoinTimeout:
		return PlayerNoJoinTimeout{playerEventBase: base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, req.Type)
	}
}

// NewPlayerDisconnected and friends build events without going through the wire form.
func NewPlayerDisconnected(playerID, matchID, reason string) PlayerDisconnected {
	return PlayerDisconnected{playerEventBase: playerEventBase{playerID, matchID}, Reason: reason}
}

func NewPlayerCrashed(playerID, matchID, reason string) PlayerCrashed {
	return PlayerCrashed{playerEventBase: playerEventBase{playerID, matchID}, Reason: reason}
}

func NewPlayerConnected(playerID, matchID string) PlayerConnected {
	return PlayerConnected{playerEventBase: playerEventBase{playerID, matchID}}
}

func NewPlayerNoJoinTimeout(playerID, matchID string) PlayerNoJoinTimeout {
	return PlayerNoJoinTimeout{playerEventBase: playerEventBase{playerID, matchID}}
}

// DisconnectKind selects the grace period and the ban reason on expiry.
type DisconnectKind string

const (
	DisconnectKindQuit  DisconnectKind = "disconnect"
	DisconnectKindCrash DisconnectKind = "crash"
)

// PendingDisconnect is a forgiven-pending disconnect awaiting reconnect or expiry.
type PendingDisconnect struct {
	PlayerID  string         `json:"playerId"`
	MatchID   string         `json:"matchId"`
	Kind      DisconnectKind `json:"kind"`
	StartedAt time.Time      `json:"startedAt"`
	Deadline  time.Time      `json:"deadline"`
}
