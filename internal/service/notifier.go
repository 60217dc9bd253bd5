package service

// Push event types delivered to players.
const (
	NotifyMatchFound       = "match_found"
	NotifyReadyCheckPassed = "ready_check_passed"
	NotifyVetoResolved     = "veto_resolved"
	NotifyMatchConnect     = "match_connect"
	NotifyMatchLive        = "match_live"
	NotifyMatchCompleted   = "match_completed"
	NotifyMatchCancelled   = "match_cancelled"
	NotifyPlayerBanned     = "player_banned"
)

// Notifier pushes an event to the given players. Delivery is best effort.
type Notifier interface {
	Notify(playerIDs []string, eventType string, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Notify([]string, string, interface{}) {}

// NopNotifier drops every event.
var NopNotifier Notifier = nopNotifier{}
