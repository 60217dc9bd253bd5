package models

type RoundReport struct {
	Number      int                `json:"number" binding:"required,min=1"`
	Map         string             `json:"map"`
	TeamAScore  int                `json:"teamAScore" binding:"min=0"`
	TeamBScore  int                `json:"teamBScore" binding:"min=0"`
	MVPPlayerID *string            `json:"mvpPlayerId"`
	Stats       []PlayerRoundStats `json:"stats"`
}

// CompletionReport closes a match. Final scores are only consulted when
// no rounds were reported for the match.
type CompletionReport struct {
	TeamAScore *int `json:"teamAScore"`
	TeamBScore *int `json:"teamBScore"`
}

type VoteRequest struct {
	Map string `json:"map" binding:"required"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type FormMatchRequest struct {
	FillBots bool `json:"fillBots"`
}

// Assignment is what a hosting instance learns when polling for work.
type Assignment struct {
	MatchID     string   `json:"matchId"`
	Status      string   `json:"status"`
	Map         string   `json:"map"`
	Whitelist   []string `json:"whitelist"`
	CallbackURL string   `json:"callbackUrl"`
}

// ConnectInfo is pushed to players once their server is ready.
type ConnectInfo struct {
	MatchID  string `json:"matchId"`
	Address  string `json:"address"`
	Password string `json:"password"`
	Map      string `json:"map"`
}
