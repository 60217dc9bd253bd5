package models

import "time"

type BanReason string

const (
	BanReasonAFK      BanReason = "AFK"
	BanReasonNoJoin   BanReason = "NO_JOIN"
	BanReasonRageQuit BanReason = "RAGE_QUIT"
	BanReasonNoRejoin BanReason = "NO_REJOIN"
	BanReasonManual   BanReason = "MANUAL"
)

// IssuerSystem marks bans created by automated enforcement.
const IssuerSystem = "system"

type Ban struct {
	ID        string     `json:"id" db:"id"`
	PlayerID  string     `json:"playerId" db:"player_id"`
	Reason    BanReason  `json:"reason" db:"reason"`
	Active    bool       `json:"active" db:"active"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	IssuedBy  string     `json:"issuedBy" db:"issued_by"`
	MatchID   *string    `json:"matchId,omitempty" db:"match_id"`
	Note      string     `json:"note,omitempty" db:"note"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	RevokedAt *time.Time `json:"revokedAt,omitempty" db:"revoked_at"`
}

// InForce reports whether the ban still blocks the player at now.
func (b *Ban) InForce(now time.Time) bool {
	if !b.Active {
		return false
	}
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}

type CreateBanRequest struct {
	PlayerID        string `json:"playerId" binding:"required"`
	DurationMinutes *int   `json:"durationMinutes"`
	Note            string `json:"note"`
}
