package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/service"
)

// AttendanceReader is the read side of repository.AttendanceRepo.
type AttendanceReader interface {
	Find(ctx context.Context, userID uint64, date time.Time) (*model.AttendanceRecord, error)
	GetByID(ctx context.Context, id uint64) (model.AttendanceRecord, error)
	ListByDate(ctx context.Context, date time.Time) ([]model.AttendanceRecord, error)
	ListByUserRange(ctx context.Context, userID uint64, from, to time.Time) ([]model.AttendanceRecord, error)
	StatsByUser(ctx context.Context, userID uint64, from, to time.Time) (model.AttendanceStats, error)
}

// AttendanceHandler serves the employee endpoints: scanning a code, today's
// record and the monthly history.
type AttendanceHandler struct {
	guard   *service.AttendanceGuard
	records AttendanceReader
	cfg     config.AttendanceConfig
	clock   clock.Clock
	log     *zap.Logger
}

func NewAttendanceHandler(guard *service.AttendanceGuard, records AttendanceReader, cfg config.AttendanceConfig, clk clock.Clock, log *zap.Logger) *AttendanceHandler {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AttendanceHandler{guard: guard, records: records, cfg: cfg, clock: clk, log: log.Named("attendance")}
}

type scanReq struct {
	Token string `json:"token" validate:"required,max=128"`
}

// Scan records a check-in or check-out from a scanned QR token.
func (h *AttendanceHandler) Scan(c echo.Context) error {
	uid, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req scanReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	rec, err := h.guard.Submit(c.Request().Context(), uid, req.Token, h.clock.Now())
	if err != nil {
		return writeError(c, h.log, err)
	}
	action := "check_in"
	if rec.HasCheckedOut {
		action = "check_out"
	}
	return c.JSON(http.StatusOK, echo.Map{"action": action, "attendance": rec})
}

// Today returns the caller's record for the current day, or null.
func (h *AttendanceHandler) Today(c echo.Context) error {
	uid, ok, err := currentUser(c)
	if !ok {
		return err
	}
	now := h.clock.Now().In(h.cfg.Location)
	rec, err := h.records.Find(c.Request().Context(), uid, now)
	if err != nil {
		return storageFailure(c, h.log, "load attendance", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"date": now.Format("2006-01-02"), "attendance": rec})
}

// History returns the caller's records and per-status counts for
// ?month=YYYY-MM, defaulting to the current month.
func (h *AttendanceHandler) History(c echo.Context) error {
	uid, ok, err := currentUser(c)
	if !ok {
		return err
	}
	from, ok := h.monthStart(c.QueryParam("month"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_month", "message": "month must be YYYY-MM"})
	}
	to := from.AddDate(0, 1, 0)

	ctx := c.Request().Context()
	recs, err := h.records.ListByUserRange(ctx, uid, from, to)
	if err != nil {
		return storageFailure(c, h.log, "list attendance", err)
	}
	stats, err := h.records.StatsByUser(ctx, uid, from, to)
	if err != nil {
		return storageFailure(c, h.log, "count attendance", err)
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"month":   from.Format("2006-01"),
		"records": recs,
		"stats":   stats,
	})
}

func (h *AttendanceHandler) monthStart(raw string) (time.Time, bool) {
	if raw == "" {
		now := h.clock.Now().In(h.cfg.Location)
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, h.cfg.Location), true
	}
	t, err := time.ParseInLocation("2006-01", raw, h.cfg.Location)
	return t, err == nil
}
