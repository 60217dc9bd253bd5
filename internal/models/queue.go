package models

import "time"

type QueueStatus string

const (
	QueueStatusWaiting QueueStatus = "WAITING"
	QueueStatusMatched QueueStatus = "MATCHED"
	QueueStatusExpired QueueStatus = "EXPIRED"
)

type QueueEntry struct {
	ID          string      `json:"id" db:"id"`
	PlayerID    string      `json:"playerId" db:"player_id"`
	DisplayName string      `json:"displayName" db:"display_name"`
	Rating      int         `json:"rating" db:"rating"`
	Status      QueueStatus `json:"status" db:"status"`
	MatchID     *string     `json:"matchId,omitempty" db:"match_id"`
	EnqueuedAt  time.Time   `json:"enqueuedAt" db:"enqueued_at"`
	ExpiresAt   time.Time   `json:"expiresAt" db:"expires_at"`
	MatchedAt   *time.Time  `json:"matchedAt,omitempty" db:"matched_at"`
}
