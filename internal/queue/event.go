// Package queue defines message payloads exchanged over the message broker.
package queue

import "github.com/iliyamo/qr-attendance/internal/model"

// AuditEvent is published whenever an attendance record changes: a scan,
// an HR edit or the absence sweep.  Before is nil when the change created
// the record.
type AuditEvent struct {
	ID         string                  `json:"id"`
	Action     string                  `json:"action"`
	ActorID    uint64                  `json:"actor_id"`
	UserID     uint64                  `json:"user_id"`
	Before     *model.AttendanceRecord `json:"before,omitempty"`
	After      *model.AttendanceRecord `json:"after,omitempty"`
	OccurredAt string                  `json:"occurred_at"`
}
