package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/service"
)

// requestValidator plugs go-playground/validator into echo's c.Validate.
type requestValidator struct {
	v *validator.Validate
}

// NewValidator returns the echo.Validator used by every handler.
func NewValidator() echo.Validator {
	return &requestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (rv *requestValidator) Validate(i any) error {
	if err := rv.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// bindValid binds the request body into dst and validates it.  On failure it
// writes the 400 response itself and returns false.
func bindValid(c echo.Context, dst any) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_body", "message": "request body is not valid JSON"})
	}
	if err := c.Validate(dst); err != nil {
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_failed", "message": msg})
	}
	return true, nil
}

// currentUser returns the authenticated user id or writes a 401.
func currentUser(c echo.Context) (uint64, bool, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return id, true, nil
}

func parseIDParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{service.ErrOutsideWindow, http.StatusUnprocessableEntity, "outside_window"},
	{service.ErrCheckInWindowClosed, http.StatusUnprocessableEntity, "check_in_window_closed"},
	{service.ErrCheckOutTooEarly, http.StatusUnprocessableEntity, "check_out_too_early"},
	{service.ErrCheckOutBeforeCheckIn, http.StatusUnprocessableEntity, "check_out_before_check_in"},
	{service.ErrCheckInRequiredFirst, http.StatusUnprocessableEntity, "check_in_required_first"},
	{service.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
	{service.ErrAlreadyUsedToken, http.StatusConflict, "already_used_token"},
	{service.ErrAlreadyCheckedIn, http.StatusConflict, "already_checked_in"},
	{service.ErrAlreadyCheckedOut, http.StatusConflict, "already_checked_out"},
	{service.ErrUnknownQrType, http.StatusBadRequest, "unknown_qr_type"},
	{service.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{service.ErrStorageUnavailable, http.StatusServiceUnavailable, "storage_unavailable"},
	{repository.ErrAttendanceNotFound, http.StatusNotFound, "not_found"},
	{repository.ErrAttendanceExists, http.StatusConflict, "already_recorded"},
}

// writeError maps service and repository errors to a JSON response.
// Rejections carry the time of the attempt and the expected window.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	for _, m := range errorTable {
		if !errors.Is(err, m.err) {
			continue
		}
		body := echo.Map{"error": m.code, "message": m.err.Error()}
		var rej *service.RejectionError
		if errors.As(err, &rej) {
			body["now"] = rej.Now.Format(time.RFC3339)
			if rej.Expected != "" {
				body["expected"] = rej.Expected
			}
		}
		if m.status == http.StatusServiceUnavailable {
			log.Error("storage unavailable", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.JSON(m.status, body)
	}
	log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}

// storageFailure answers a failed read from MySQL or Redis.
func storageFailure(c echo.Context, log *zap.Logger, op string, err error) error {
	log.Error(op+" failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage_unavailable", "message": op + " failed"})
}
