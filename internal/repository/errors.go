// Package repository holds the MySQL-backed stores and the sentinel errors
// they return.  Handlers and services match on these values with errors.Is
// instead of inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrAttendanceExists is returned when inserting a second attendance row
// for the same user and day.
var ErrAttendanceExists = errors.New("attendance already recorded for this day")

// ErrAttendanceNotFound is returned when an attendance row id is unknown.
var ErrAttendanceNotFound = errors.New("attendance not found")

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrRefreshInvalid is returned for unknown, revoked or expired refresh
// tokens.
var ErrRefreshInvalid = errors.New("refresh token invalid")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return err != nil && strings.Contains(err.Error(), "1062")
}
