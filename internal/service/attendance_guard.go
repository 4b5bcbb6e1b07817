package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/repository"
)

// ConsumedKey is the store key marking that userID already used token.
func ConsumedKey(userID uint64, token string) string {
	return "consumed:" + strconv.FormatUint(userID, 10) + ":" + token
}

// AttendancePatch lists the fields HR may correct.  Nil fields are left
// unchanged.
type AttendancePatch struct {
	Status   *model.AttendanceStatus
	Notes    *string
	CheckIn  *time.Time
	CheckOut *time.Time
}

// AttendanceGuard validates scanned QR tokens and moves the per-day
// attendance record through check-in and check-out.  All work for one user
// is serialized; different users proceed independently.
type AttendanceGuard struct {
	issuer *QrIssuer
	store  TokenStore
	ledger AttendanceLedger
	audit  AuditSink
	cfg    config.AttendanceConfig
	clock  clock.Clock
	log    *zap.Logger
	locks  *keyedMutex
}

// NewAttendanceGuard wires a guard.  audit may be nil to disable auditing.
func NewAttendanceGuard(issuer *QrIssuer, store TokenStore, ledger AttendanceLedger, audit AuditSink, cfg config.AttendanceConfig, clk clock.Clock, log *zap.Logger) *AttendanceGuard {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AttendanceGuard{
		issuer: issuer,
		store:  store,
		ledger: ledger,
		audit:  audit,
		cfg:    cfg,
		clock:  clk,
		log:    log.Named("attendance"),
		locks:  newKeyedMutex(),
	}
}

// Submit records a check-in or check-out for userID from a scanned token.
// Which one depends on the window open at now.
func (g *AttendanceGuard) Submit(ctx context.Context, userID uint64, token string, now time.Time) (model.AttendanceRecord, error) {
	now = now.In(g.cfg.Location)
	before, saved, err := g.submitLocked(ctx, userID, strings.TrimSpace(token), now)
	if err != nil {
		if IsRejection(err) {
			g.log.Info("scan rejected", zap.Uint64("user_id", userID), zap.Error(err))
		} else {
			g.log.Error("scan failed", zap.Uint64("user_id", userID), zap.Error(err))
		}
		return model.AttendanceRecord{}, err
	}
	g.record(ctx, AuditEntry{
		ActorID: userID,
		UserID:  userID,
		Action:  ActionSubmitAttendance,
		Before:  before,
		After:   &saved,
		At:      now,
	})
	return saved, nil
}

func (g *AttendanceGuard) submitLocked(ctx context.Context, userID uint64, token string, now time.Time) (*model.AttendanceRecord, model.AttendanceRecord, error) {
	unlock := g.locks.Lock(userID)
	defer unlock()

	qrType := g.issuer.DetermineType(now)
	if qrType == model.QrNone {
		return nil, model.AttendanceRecord{}, reject(ErrOutsideWindow, now,
			"check-in %s-%s, check-out %s-%s",
			config.FormatClock(g.cfg.OpensAt), config.FormatClock(g.cfg.Cutoff),
			config.FormatClock(g.cfg.Cutoff), config.FormatClock(g.cfg.ClosesAt))
	}

	active, ok, err := g.issuer.Active(ctx, qrType)
	if err != nil {
		return nil, model.AttendanceRecord{}, err
	}
	if !ok || token == "" || subtle.ConstantTimeCompare([]byte(active.Token), []byte(token)) != 1 || active.Expired(now) {
		return nil, model.AttendanceRecord{}, reject(ErrInvalidToken, now, "scan the current %s code", qrType)
	}

	consumed := ConsumedKey(userID, token)
	if _, used, err := g.store.Get(ctx, consumed); err != nil {
		return nil, model.AttendanceRecord{}, storageErr("attendance: read consumption marker", err)
	} else if used {
		return nil, model.AttendanceRecord{}, reject(ErrAlreadyUsedToken, now, "wait for the next code")
	}

	day := startOfDay(now)
	existing, err := g.ledger.Find(ctx, userID, day)
	if err != nil {
		return nil, model.AttendanceRecord{}, storageErr("attendance: load record", err)
	}
	rec := model.AttendanceRecord{UserID: userID, Date: day}
	var before *model.AttendanceRecord
	if existing != nil {
		snapshot := *existing
		before = &snapshot
		rec = *existing
	}

	switch qrType {
	case model.QrCheckIn:
		err = g.applyCheckIn(&rec, now)
	case model.QrCheckOut:
		err = g.applyCheckOut(&rec, now)
	}
	if err != nil {
		return nil, model.AttendanceRecord{}, err
	}

	saved, err := g.ledger.Upsert(ctx, rec)
	if errors.Is(err, repository.ErrAttendanceExists) {
		// Another process inserted today's row between Find and Upsert.
		return nil, model.AttendanceRecord{}, reject(ErrAlreadyCheckedIn, now, "one check-in per day")
	}
	if err != nil {
		return nil, model.AttendanceRecord{}, storageErr("attendance: save record", err)
	}

	if err := g.store.PutWithTTL(ctx, consumed, "1", endOfDay(now).Sub(now)); err != nil {
		// The record is already saved and the state check rejects a replay.
		g.log.Warn("consumption marker not stored", zap.Uint64("user_id", userID), zap.Error(err))
	}
	return before, saved, nil
}

func (g *AttendanceGuard) applyCheckIn(rec *model.AttendanceRecord, now time.Time) error {
	if rec.HasCheckedIn {
		return reject(ErrAlreadyCheckedIn, now, "checked in at %s", rec.CheckIn.In(g.cfg.Location).Format("15:04:05"))
	}
	tod := timeOfDay(now)
	if tod >= g.cfg.CheckInDeadline {
		return reject(ErrCheckInWindowClosed, now, "check-in closes at %s", config.FormatClock(g.cfg.CheckInDeadline))
	}
	at := now.Truncate(time.Second)
	rec.CheckIn = &at
	rec.HasCheckedIn = true
	if tod <= g.cfg.LateThreshold {
		rec.Status = model.StatusPresent
	} else {
		rec.Status = model.StatusLate
	}
	return nil
}

func (g *AttendanceGuard) applyCheckOut(rec *model.AttendanceRecord, now time.Time) error {
	if !rec.HasCheckedIn || rec.CheckIn == nil {
		return reject(ErrCheckInRequiredFirst, now, "check in before %s", config.FormatClock(g.cfg.CheckInDeadline))
	}
	if rec.HasCheckedOut {
		return reject(ErrAlreadyCheckedOut, now, "checked out at %s", rec.CheckOut.In(g.cfg.Location).Format("15:04:05"))
	}
	if timeOfDay(now) < g.cfg.CheckOutWindowStart {
		return reject(ErrCheckOutTooEarly, now, "check-out opens at %s", config.FormatClock(g.cfg.CheckOutWindowStart))
	}
	at := now.Truncate(time.Second)
	if !at.After(*rec.CheckIn) {
		return reject(ErrCheckOutBeforeCheckIn, now, "checked in at %s", rec.CheckIn.In(g.cfg.Location).Format("15:04:05"))
	}
	rec.CheckOut = &at
	rec.HasCheckedOut = true
	return nil
}

// EditAttendance applies an HR correction to record.  The stored row is
// re-read under the user's lock, so record only needs to identify it; when
// no row exists yet the patch is applied to record and inserted.
func (g *AttendanceGuard) EditAttendance(ctx context.Context, editorID uint64, record model.AttendanceRecord, patch AttendancePatch) (model.AttendanceRecord, error) {
	now := g.clock.Now().In(g.cfg.Location)
	before, saved, err := g.editLocked(ctx, editorID, record, patch, now)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	g.record(ctx, AuditEntry{
		ActorID: editorID,
		UserID:  saved.UserID,
		Action:  ActionEditAttendance,
		Before:  before,
		After:   &saved,
		At:      now,
	})
	return saved, nil
}

func (g *AttendanceGuard) editLocked(ctx context.Context, editorID uint64, record model.AttendanceRecord, patch AttendancePatch, now time.Time) (*model.AttendanceRecord, model.AttendanceRecord, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, model.AttendanceRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *patch.Status)
	}

	unlock := g.locks.Lock(record.UserID)
	defer unlock()

	day := startOfDay(record.Date.In(g.cfg.Location))
	current, err := g.ledger.Find(ctx, record.UserID, day)
	if err != nil {
		return nil, model.AttendanceRecord{}, storageErr("attendance: load record", err)
	}
	var before *model.AttendanceRecord
	next := record
	next.ID = 0
	next.Date = day
	if current != nil {
		snapshot := *current
		before = &snapshot
		next = *current
	}

	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.Notes != nil {
		next.Notes = *patch.Notes
	}
	if patch.CheckIn != nil {
		at := patch.CheckIn.In(g.cfg.Location).Truncate(time.Second)
		if !sameDay(at, day) {
			return nil, model.AttendanceRecord{}, reject(ErrOutsideWindow, now, "check-in must fall on %s", day.Format("2006-01-02"))
		}
		if timeOfDay(at) >= g.cfg.CheckInDeadline {
			return nil, model.AttendanceRecord{}, reject(ErrCheckInWindowClosed, now, "check-in must be before %s", config.FormatClock(g.cfg.CheckInDeadline))
		}
		next.CheckIn = &at
		next.HasCheckedIn = true
	}
	if patch.CheckOut != nil {
		at := patch.CheckOut.In(g.cfg.Location).Truncate(time.Second)
		if !sameDay(at, day) {
			return nil, model.AttendanceRecord{}, reject(ErrOutsideWindow, now, "check-out must fall on %s", day.Format("2006-01-02"))
		}
		if timeOfDay(at) < g.cfg.CheckOutWindowStart {
			return nil, model.AttendanceRecord{}, reject(ErrCheckOutTooEarly, now, "check-out must be at or after %s", config.FormatClock(g.cfg.CheckOutWindowStart))
		}
		next.CheckOut = &at
		next.HasCheckedOut = true
	}
	if next.HasCheckedOut {
		if !next.HasCheckedIn || next.CheckIn == nil {
			return nil, model.AttendanceRecord{}, reject(ErrCheckInRequiredFirst, now, "set a check-in time first")
		}
		if !next.CheckOut.After(*next.CheckIn) {
			return nil, model.AttendanceRecord{}, reject(ErrCheckOutBeforeCheckIn, now, "check-in is %s", next.CheckIn.Format("15:04:05"))
		}
	}

	editedAt := now.Truncate(time.Second)
	next.EditorID = &editorID
	next.EditedAt = &editedAt

	saved, err := g.ledger.Upsert(ctx, next)
	if err != nil {
		if errors.Is(err, repository.ErrAttendanceExists) {
			return nil, model.AttendanceRecord{}, err
		}
		return nil, model.AttendanceRecord{}, storageErr("attendance: save record", err)
	}
	return before, saved, nil
}

func (g *AttendanceGuard) record(ctx context.Context, e AuditEntry) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Record(ctx, e); err != nil {
		g.log.Warn("audit event dropped",
			zap.String("action", e.Action),
			zap.Uint64("user_id", e.UserID),
			zap.Error(err))
	}
}
