package model

import "time"

// AttendanceStatus is the value stored in attendances.status.
type AttendanceStatus string

const (
	StatusPresent           AttendanceStatus = "present"
	StatusLate              AttendanceStatus = "late"
	StatusExcusedSick       AttendanceStatus = "excused_sick"
	StatusExcusedPermission AttendanceStatus = "excused_permission"
	StatusAbsent            AttendanceStatus = "absent"
)

// AllStatuses lists every status in display order.
var AllStatuses = []AttendanceStatus{
	StatusPresent,
	StatusLate,
	StatusExcusedSick,
	StatusExcusedPermission,
	StatusAbsent,
}

// Valid reports whether s is one of the known statuses.
func (s AttendanceStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// AttendanceRecord represents one row of the `attendances` table.  There is
// at most one row per user per calendar day, enforced by the unique key on
// (user_id, date).
//
// Fields:
//  ID            – primary key identifier.
//  UserID        – employee the row belongs to.
//  Date          – calendar day (midnight in the attendance time zone).
//  CheckIn       – check-in timestamp (nil until the employee checks in).
//  CheckOut      – check-out timestamp (nil until the employee checks out).
//  HasCheckedIn  – whether a check-in has been recorded.
//  HasCheckedOut – whether a check-out has been recorded; implies HasCheckedIn.
//  Status        – present, late, excused_sick, excused_permission or absent.
//  Notes         – free text, usually written by HR.
//  EditorID      – HR/admin user who last edited the row (nil if never edited).
//  EditedAt      – when the row was last edited by HR/admin.
type AttendanceRecord struct {
	ID            uint64           `json:"id"`
	UserID        uint64           `json:"user_id"`
	Date          time.Time        `json:"date"`
	CheckIn       *time.Time       `json:"check_in"`
	CheckOut      *time.Time       `json:"check_out"`
	HasCheckedIn  bool             `json:"has_checked_in"`
	HasCheckedOut bool             `json:"has_checked_out"`
	Status        AttendanceStatus `json:"status"`
	Notes         string           `json:"notes"`
	EditorID      *uint64          `json:"editor_id,omitempty"`
	EditedAt      *time.Time       `json:"edited_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Consistent reports whether the check-in/check-out flags and timestamps
// agree with each other.
func (r AttendanceRecord) Consistent() bool {
	if r.HasCheckedIn != (r.CheckIn != nil) || r.HasCheckedOut != (r.CheckOut != nil) {
		return false
	}
	if r.HasCheckedOut {
		return r.HasCheckedIn && r.CheckOut.After(*r.CheckIn)
	}
	return true
}

// AttendanceStats counts rows per status over a date range.
type AttendanceStats struct {
	TotalDays         int `json:"total_days"`
	Present           int `json:"present"`
	Late              int `json:"late"`
	ExcusedSick       int `json:"excused_sick"`
	ExcusedPermission int `json:"excused_permission"`
	Absent            int `json:"absent"`
}

// Add counts one row with status s.
func (s *AttendanceStats) Add(status AttendanceStatus) { s.AddN(status, 1) }

// AddN counts n rows with status s.
func (s *AttendanceStats) AddN(status AttendanceStatus, n int) {
	s.TotalDays += n
	switch status {
	case StatusPresent:
		s.Present += n
	case StatusLate:
		s.Late += n
	case StatusExcusedSick:
		s.ExcusedSick += n
	case StatusExcusedPermission:
		s.ExcusedPermission += n
	case StatusAbsent:
		s.Absent += n
	}
}
