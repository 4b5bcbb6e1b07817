package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AttendanceConfig carries the time-of-day rules for QR issuance and
// attendance submission.  Every *At/threshold field is an offset from
// local midnight in Location.
//
// QR windows: [OpensAt, Cutoff) issues check-in tokens, [Cutoff, ClosesAt)
// issues check-out tokens, anything else is closed.
type AttendanceConfig struct {
	Location            *time.Location
	OpensAt             time.Duration
	Cutoff              time.Duration
	ClosesAt            time.Duration
	LateThreshold       time.Duration // check-ins after this are late
	CheckInDeadline     time.Duration // check-ins at/after this are rejected
	CheckOutWindowStart time.Duration // check-outs before this are rejected
	TokenTTL            time.Duration
	TokenStore          string // "redis" or "memory"
	StorePrefix         string
}

// DefaultAttendanceConfig returns the rules used when nothing is
// configured: check-in until 16:00, late after 10:00, check-out from 16:00,
// tokens valid for 30 seconds.
func DefaultAttendanceConfig() AttendanceConfig {
	return AttendanceConfig{
		Location:            time.Local,
		OpensAt:             0,
		Cutoff:              16 * time.Hour,
		ClosesAt:            24 * time.Hour,
		LateThreshold:       10 * time.Hour,
		CheckInDeadline:     16 * time.Hour,
		CheckOutWindowStart: 16 * time.Hour,
		TokenTTL:            30 * time.Second,
		TokenStore:          "redis",
		StorePrefix:         "attendance",
	}
}

// LoadAttendanceConfig overlays ATTENDANCE_* and QR_TOKEN_TTL variables on
// the defaults.  An invalid combination terminates the process.
func LoadAttendanceConfig() AttendanceConfig {
	c := DefaultAttendanceConfig()
	if tz := envStr("ATTENDANCE_TZ", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			zap.L().Fatal("invalid ATTENDANCE_TZ", zap.String("tz", tz), zap.Error(err))
		}
		c.Location = loc
	}
	c.OpensAt = envClock("ATTENDANCE_OPENS_AT", c.OpensAt)
	c.Cutoff = envClock("ATTENDANCE_CUTOFF", c.Cutoff)
	c.ClosesAt = envClock("ATTENDANCE_CLOSES_AT", c.ClosesAt)
	c.LateThreshold = envClock("ATTENDANCE_LATE_THRESHOLD", c.LateThreshold)
	c.CheckInDeadline = envClock("ATTENDANCE_CHECKIN_DEADLINE", c.Cutoff)
	c.CheckOutWindowStart = envClock("ATTENDANCE_CHECKOUT_START", c.Cutoff)
	c.TokenTTL = envDur("QR_TOKEN_TTL", c.TokenTTL)
	c.TokenStore = strings.ToLower(envStr("TOKEN_STORE", c.TokenStore))
	c.StorePrefix = envStr("TOKEN_STORE_PREFIX", c.StorePrefix)
	if err := c.Validate(); err != nil {
		zap.L().Fatal("invalid attendance configuration", zap.Error(err))
	}
	return c
}

// Validate checks that the windows are ordered and the TTL is usable.
func (c AttendanceConfig) Validate() error {
	if c.Location == nil {
		return fmt.Errorf("attendance: location is required")
	}
	if c.OpensAt < 0 || c.ClosesAt > 24*time.Hour {
		return fmt.Errorf("attendance: window must lie within one day")
	}
	if c.OpensAt > c.Cutoff || c.Cutoff > c.ClosesAt {
		return fmt.Errorf("attendance: need opens_at <= cutoff <= closes_at, got %s/%s/%s",
			FormatClock(c.OpensAt), FormatClock(c.Cutoff), FormatClock(c.ClosesAt))
	}
	if c.LateThreshold > c.CheckInDeadline {
		return fmt.Errorf("attendance: late threshold %s is after check-in deadline %s",
			FormatClock(c.LateThreshold), FormatClock(c.CheckInDeadline))
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("attendance: token ttl must be positive")
	}
	switch c.TokenStore {
	case "redis", "memory":
	default:
		return fmt.Errorf("attendance: unknown token store %q", c.TokenStore)
	}
	return nil
}

// ParseClock parses "HH:MM" (or "HH:MM:SS") into an offset from midnight.
// "24:00" is accepted as the end of the day.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		nums[i] = n
	}
	h, m, sec := nums[0], nums[1], nums[2]
	if m > 59 || sec > 59 || h > 24 || (h == 24 && (m > 0 || sec > 0)) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// FormatClock renders an offset from midnight as "HH:MM".
func FormatClock(d time.Duration) string {
	d = d.Truncate(time.Minute)
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int((d%time.Hour)/time.Minute))
}

func envClock(k string, d time.Duration) time.Duration {
	v := envStr(k, "")
	if v == "" {
		return d
	}
	parsed, err := ParseClock(v)
	if err != nil {
		zap.L().Warn("ignoring invalid time of day", zap.String("key", k), zap.String("value", v))
		return d
	}
	return parsed
}
