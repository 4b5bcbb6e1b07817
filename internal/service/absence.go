package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/repository"
)

// AbsentNote is stored on rows created by the absence sweep.
const AbsentNote = "Auto-marked absent (no attendance recorded)"

// AbsenceSweeper creates absent rows for employees without a record on a
// given day.
type AbsenceSweeper struct {
	users  EmployeeDirectory
	ledger AttendanceLedger
	audit  AuditSink
	loc    *time.Location
	clock  clock.Clock
	log    *zap.Logger
}

func NewAbsenceSweeper(users EmployeeDirectory, ledger AttendanceLedger, audit AuditSink, loc *time.Location, clk clock.Clock, log *zap.Logger) *AbsenceSweeper {
	if loc == nil {
		loc = time.Local
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AbsenceSweeper{users: users, ledger: ledger, audit: audit, loc: loc, clock: clk, log: log.Named("absence")}
}

// MarkAbsent inserts an absent row for every active employee who has no
// record on date and returns how many rows were created.  Rows that
// appear concurrently are skipped.
func (s *AbsenceSweeper) MarkAbsent(ctx context.Context, date time.Time) (int, error) {
	day := startOfDay(date.In(s.loc))
	ids, err := s.users.ListActiveIDsByRole(ctx, model.RoleEmployee)
	if err != nil {
		return 0, storageErr("absence: list employees", err)
	}

	created := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		existing, err := s.ledger.Find(ctx, id, day)
		if err != nil {
			return created, storageErr(fmt.Sprintf("absence: load record for user %d", id), err)
		}
		if existing != nil {
			continue
		}
		saved, err := s.ledger.Upsert(ctx, model.AttendanceRecord{
			UserID: id,
			Date:   day,
			Status: model.StatusAbsent,
			Notes:  AbsentNote,
		})
		if errors.Is(err, repository.ErrAttendanceExists) {
			continue
		}
		if err != nil {
			return created, storageErr(fmt.Sprintf("absence: save record for user %d", id), err)
		}
		created++
		if s.audit != nil {
			if err := s.audit.Record(ctx, AuditEntry{UserID: id, Action: ActionMarkAbsent, After: &saved, At: s.clock.Now().In(s.loc)}); err != nil {
				s.log.Warn("audit event dropped", zap.Uint64("user_id", id), zap.Error(err))
			}
		}
	}
	s.log.Info("absence sweep finished",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("employees", len(ids)),
		zap.Int("marked_absent", created))
	return created, nil
}
