package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/service"
)

// HRAttendanceHandler lets HR and admins monitor and correct attendance.
type HRAttendanceHandler struct {
	guard   *service.AttendanceGuard
	records AttendanceReader
	cfg     config.AttendanceConfig
	clock   clock.Clock
	log     *zap.Logger
}

func NewHRAttendanceHandler(guard *service.AttendanceGuard, records AttendanceReader, cfg config.AttendanceConfig, clk clock.Clock, log *zap.Logger) *HRAttendanceHandler {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HRAttendanceHandler{guard: guard, records: records, cfg: cfg, clock: clk, log: log.Named("hr")}
}

// List returns every record of ?date=YYYY-MM-DD (default today) with
// per-status counts.
func (h *HRAttendanceHandler) List(c echo.Context) error {
	day := h.clock.Now().In(h.cfg.Location)
	if raw := c.QueryParam("date"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, h.cfg.Location)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_date", "message": "date must be YYYY-MM-DD"})
		}
		day = t
	}
	recs, err := h.records.ListByDate(c.Request().Context(), day)
	if err != nil {
		return storageFailure(c, h.log, "list attendance", err)
	}
	var stats model.AttendanceStats
	for _, r := range recs {
		stats.Add(r.Status)
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":    day.Format("2006-01-02"),
		"records": recs,
		"stats":   stats,
	})
}

// Get returns one record by id.
func (h *HRAttendanceHandler) Get(c echo.Context) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_id"})
	}
	rec, err := h.records.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrAttendanceNotFound) {
		return writeError(c, h.log, err)
	}
	if err != nil {
		return storageFailure(c, h.log, "load attendance", err)
	}
	return c.JSON(http.StatusOK, rec)
}

type patchReq struct {
	Status   *string    `json:"status" validate:"omitempty,oneof=present late excused_sick excused_permission absent"`
	Notes    *string    `json:"notes" validate:"omitempty,max=1000"`
	CheckIn  *time.Time `json:"check_in"`
	CheckOut *time.Time `json:"check_out"`
}

func (p patchReq) empty() bool {
	return p.Status == nil && p.Notes == nil && p.CheckIn == nil && p.CheckOut == nil
}

// Patch corrects status, notes and timestamps of a record.  Times are
// RFC 3339 and must fall on the record's day.
func (h *HRAttendanceHandler) Patch(c echo.Context) error {
	editorID, ok, err := currentUser(c)
	if !ok {
		return err
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_id"})
	}
	var req patchReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	if req.empty() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": "nothing to update"})
	}

	ctx := c.Request().Context()
	rec, err := h.records.GetByID(ctx, id)
	if errors.Is(err, repository.ErrAttendanceNotFound) {
		return writeError(c, h.log, err)
	}
	if err != nil {
		return storageFailure(c, h.log, "load attendance", err)
	}

	patch := service.AttendancePatch{Notes: req.Notes, CheckIn: req.CheckIn, CheckOut: req.CheckOut}
	if req.Status != nil {
		s := model.AttendanceStatus(*req.Status)
		patch.Status = &s
	}
	saved, err := h.guard.EditAttendance(ctx, editorID, rec, patch)
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.log.Info("attendance edited", zap.Uint64("editor_id", editorID), zap.Uint64("attendance_id", saved.ID))
	return c.JSON(http.StatusOK, saved)
}
