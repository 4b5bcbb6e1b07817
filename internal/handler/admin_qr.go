package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/service"
)

// QrHandler feeds the QR display screen and lets admins rotate codes.
type QrHandler struct {
	issuer *service.QrIssuer
	audit  service.AuditSink
	cfg    config.AttendanceConfig
	clock  clock.Clock
	log    *zap.Logger
}

func NewQrHandler(issuer *service.QrIssuer, audit service.AuditSink, cfg config.AttendanceConfig, clk clock.Clock, log *zap.Logger) *QrHandler {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QrHandler{issuer: issuer, audit: audit, cfg: cfg, clock: clk, log: log.Named("qr")}
}

type qrResp struct {
	model.QrToken
	ExpiresIn int `json:"expires_in"`
}

func newQrResp(t model.QrToken, now time.Time) qrResp {
	left := t.ValidUntil.Sub(now)
	if left < 0 {
		left = 0
	}
	return qrResp{QrToken: t, ExpiresIn: int(left.Round(time.Second) / time.Second)}
}

// Current returns the token of the window open now.  Outside every window
// it answers {"type":"none","closed":true}.
func (h *QrHandler) Current(c echo.Context) error {
	now := h.clock.Now().In(h.cfg.Location)
	typ := h.issuer.DetermineType(now)
	if typ == model.QrNone {
		return c.JSON(http.StatusOK, echo.Map{
			"type":   "none",
			"closed": true,
			"opens":  config.FormatClock(h.cfg.OpensAt),
		})
	}
	tok, err := h.issuer.CurrentToken(c.Request().Context(), typ, now)
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, newQrResp(tok, now))
}

type rotateReq struct {
	Type string `json:"type" validate:"required,oneof=check_in check_out"`
}

// Rotate replaces the active token of the given type immediately.
func (h *QrHandler) Rotate(c echo.Context) error {
	adminID, ok, err := currentUser(c)
	if !ok {
		return err
	}
	var req rotateReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	ctx := c.Request().Context()
	tok, err := h.issuer.Rotate(ctx, model.QrType(req.Type))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if h.audit != nil {
		if err := h.audit.Record(ctx, service.AuditEntry{
			ActorID: adminID,
			Action:  service.ActionRotateQr,
			At:      tok.GeneratedAt,
		}); err != nil {
			h.log.Warn("audit event dropped", zap.String("action", service.ActionRotateQr), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, newQrResp(tok, h.clock.Now()))
}
