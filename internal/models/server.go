package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type ServerStatus string

const (
	ServerStatusAvailable   ServerStatus = "AVAILABLE"
	ServerStatusInUse       ServerStatus = "IN_USE"
	ServerStatusMaintenance ServerStatus = "MAINTENANCE"
)

// GameServer is a hosting instance able to run one match at a time.
type GameServer struct {
	ID              string       `json:"id" db:"id"`
	Name            string       `json:"name" db:"name"`
	Address         string       `json:"address" db:"address"`
	RconPassword    string       `json:"-" db:"rcon_password"`
	CallbackKeyHash string       `json:"-" db:"callback_key_hash"`
	Active          bool         `json:"active" db:"active"`
	Status          ServerStatus `json:"status" db:"status"`
	MatchID         *string      `json:"matchId,omitempty" db:"match_id"`
	CreatedAt       time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time    `json:"updatedAt" db:"updated_at"`
}

type CreateServerRequest struct {
	Name         string `json:"name" binding:"required"`
	Address      string `json:"address" binding:"required"`
	RconPassword string `json:"rconPassword" binding:"required"`
	CallbackKey  string `json:"callbackKey" binding:"required,min=16"`
}

// HashCallbackKey hashes the shared secret a hosting instance reports with.
func HashCallbackKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckCallbackKey reports whether key matches the stored hash.
func (s *GameServer) CheckCallbackKey(key string) bool {
	if s.CallbackKeyHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(s.CallbackKeyHash), []byte(key))
	return err == nil
}
