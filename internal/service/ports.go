package service

import (
	"context"
	"time"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/tokenstore"
)

// TokenStore is the TTL store holding active QR tokens and consumption
// markers.
type TokenStore = tokenstore.Store

// AttendanceLedger persists one record per user per day.  Find returns
// (nil, nil) when no row exists.  Upsert inserts rows with a zero ID and
// updates the rest; inserting a second row for the same (user, date)
// fails with repository.ErrAttendanceExists.
type AttendanceLedger interface {
	Find(ctx context.Context, userID uint64, date time.Time) (*model.AttendanceRecord, error)
	Upsert(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error)
}

// AuditEntry describes one change to an attendance record.
type AuditEntry struct {
	ActorID uint64
	UserID  uint64
	Action  string
	Before  *model.AttendanceRecord
	After   *model.AttendanceRecord
	At      time.Time
}

// AuditSink receives audit entries.  Failures are logged by the caller and
// never undo the change being audited.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry) error
}

// RoleProvider answers role membership questions for the authorization
// middleware.
type RoleProvider interface {
	HasRole(ctx context.Context, userID uint64, role string) (bool, error)
}

// EmployeeDirectory lists the users the absence sweep is responsible for.
type EmployeeDirectory interface {
	ListActiveIDsByRole(ctx context.Context, role string) ([]uint64, error)
}

const (
	ActionSubmitAttendance = "submit_attendance"
	ActionEditAttendance   = "edit_attendance"
	ActionMarkAbsent       = "mark_absent"
	ActionRotateQr         = "rotate_qr"
)
