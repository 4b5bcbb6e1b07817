package model

import "time"

// QrType identifies what a scanned QR token records.
type QrType string

const (
	QrCheckIn  QrType = "check_in"
	QrCheckOut QrType = "check_out"
	// QrNone is returned when no window is open.
	QrNone QrType = ""
)

// Valid reports whether t is check_in or check_out.
func (t QrType) Valid() bool { return t == QrCheckIn || t == QrCheckOut }

// QrToken is the payload stored under active_token:{type}.  A token is
// short lived: ValidUntil - ValidFrom equals the configured token TTL.  Once
// rotated, the previous token is simply no longer the active one.
type QrToken struct {
	Token       string    `json:"token"`
	Type        QrType    `json:"type"`
	ValidFrom   time.Time `json:"valid_from"`
	ValidUntil  time.Time `json:"valid_until"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Expired reports whether the token is past its validity at now.
func (t QrToken) Expired(now time.Time) bool { return now.After(t.ValidUntil) }
