// Package event defines the normalized envelope broadcast to overlay clients and
// the in-process bus that carries it from feature rules to the transport.
package event

import "time"

// Closed vocabulary of envelope types consumed by the overlay. Consumers must
// ignore unknown types rather than treat them as fatal.
const (
	TypeFollow       = "follow"
	TypeFirstChatter = "firstchatter"
	TypeFocusStart   = "focusstart"
	TypeFocusStop    = "focusstop"
	TypeGiveawayWin  = "giveawaywin"
	TypeCounter      = "counter"
	TypeTimedMessage = "timedmessage"
	TypePing         = "ping"
)

// UserRef identifies the platform user an event is about. Owned by the platform
// integration boundary; feature rules only read it.
type UserRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// Event is the wire envelope. Immutable once constructed.
type Event struct {
	Type      string   `json:"type"`
	User      *UserRef `json:"user"`
	Count     int      `json:"count"`
	Timestamp int64    `json:"timestamp"`
}

// now is swapped in tests to pin timestamps.
var now = time.Now

// New builds an envelope stamped with the current unix time.
func New(typ string, user *UserRef, count int) Event {
	return Event{Type: typ, User: user, Count: count, Timestamp: now().Unix()}
}
