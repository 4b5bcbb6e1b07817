package service

import (
	"errors"
	"fmt"
	"time"
)

// Rejections of a scan or an HR edit.  None of them is fatal; the caller
// reports them to the user, who has to scan again.
var (
	ErrOutsideWindow         = errors.New("no attendance window is open")
	ErrInvalidToken          = errors.New("qr code is invalid or expired")
	ErrAlreadyUsedToken      = errors.New("qr code already used")
	ErrAlreadyCheckedIn      = errors.New("already checked in today")
	ErrAlreadyCheckedOut     = errors.New("already checked out today")
	ErrCheckInWindowClosed   = errors.New("check-in window is closed")
	ErrCheckOutTooEarly      = errors.New("too early to check out")
	ErrCheckOutBeforeCheckIn = errors.New("check-out must be after check-in")
	ErrCheckInRequiredFirst  = errors.New("check-in required before check-out")
)

// Input and infrastructure errors.
var (
	ErrUnknownQrType      = errors.New("unknown qr type")
	ErrInvalidStatus      = errors.New("invalid attendance status")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// RejectionError carries the time of the attempt and the window the
// employee should have used.  It unwraps to one of the rejection sentinels.
type RejectionError struct {
	Err      error
	Now      time.Time
	Expected string
}

func (e *RejectionError) Error() string {
	at := e.Now.Format("2006-01-02 15:04:05")
	if e.Expected == "" {
		return fmt.Sprintf("%v (at %s)", e.Err, at)
	}
	return fmt.Sprintf("%v (at %s; %s)", e.Err, at, e.Expected)
}

func (e *RejectionError) Unwrap() error { return e.Err }

func reject(err error, now time.Time, expected string, args ...any) *RejectionError {
	if len(args) > 0 {
		expected = fmt.Sprintf(expected, args...)
	}
	return &RejectionError{Err: err, Now: now, Expected: expected}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// IsRejection reports whether err is a business-rule rejection rather
// than an input or storage failure.
func IsRejection(err error) bool {
	var r *RejectionError
	return errors.As(err, &r)
}
