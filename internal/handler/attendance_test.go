package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	v := newEnv(t)
	h := NewAttendanceHandler(v.guard, v.records, v.cfg, v.clk, nil)
	tok := v.currentToken(t, at(9, 0))
	body := fmt.Sprintf(`{"token":%q}`, tok)

	rec := v.call(t, h.Scan, http.MethodPost, "/v1/attendance/scan", body, 7)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "check_in", out["action"])
	att := out["attendance"].(map[string]any)
	assert.Equal(t, "present", att["status"])
	assert.Equal(t, "2026-03-02T09:00:00+07:00", att["check_in"])

	rec = v.call(t, h.Scan, http.MethodPost, "/v1/attendance/scan", body, 7)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_used_token", decode(t, rec)["error"])

	out16 := fmt.Sprintf(`{"token":%q}`, v.currentToken(t, at(16, 30)))
	rec = v.call(t, h.Scan, http.MethodPost, "/v1/attendance/scan", out16, 7)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "check_out", decode(t, rec)["action"])
}

func TestScan_Rejections(t *testing.T) {
	v := newEnv(t)
	h := NewAttendanceHandler(v.guard, v.records, v.cfg, v.clk, nil)

	rec := v.call(t, h.Scan, http.MethodPost, "/v1/attendance/scan", `{"token":"nope"}`, 7)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_token", decode(t, rec)["error"])

	rec = v.call(t, h.Scan, http.MethodPost, "/v1/attendance/scan", `{}`, 7)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode(t, rec)["error"])

	rec = v.call(t, h.Scan, http.MethodPost, "/v1/attendance/scan", `{"token":"x"}`, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body := fmt.Sprintf(`{"token":%q}`, v.currentToken(t, at(16, 30)))
	rec = v.call(t, h.Scan, http.MethodPost, "/v1/attendance/scan", body, 8)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "check_in_required_first", out["error"])
	assert.Equal(t, "2026-03-02T16:30:00+07:00", out["now"])
	assert.Contains(t, out["expected"], "16:00")
}

func TestToday(t *testing.T) {
	v := newEnv(t)
	h := NewAttendanceHandler(v.guard, v.records, v.cfg, v.clk, nil)

	rec := v.call(t, h.Today, http.MethodGet, "/v1/attendance/today", "", 7)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "2026-03-02", out["date"])
	assert.Nil(t, out["attendance"])

	v.call(t, h.Scan, http.MethodPost, "/", fmt.Sprintf(`{"token":%q}`, v.currentToken(t, at(10, 30))), 7)
	out = decode(t, v.call(t, h.Today, http.MethodGet, "/v1/attendance/today", "", 7))
	assert.Equal(t, "late", out["attendance"].(map[string]any)["status"])
}

func TestHistory(t *testing.T) {
	v := newEnv(t)
	h := NewAttendanceHandler(v.guard, v.records, v.cfg, v.clk, nil)
	v.call(t, h.Scan, http.MethodPost, "/", fmt.Sprintf(`{"token":%q}`, v.currentToken(t, at(9, 30))), 7)

	rec := v.call(t, h.History, http.MethodGet, "/v1/attendance/history?month=2026-03", "", 7)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "2026-03", out["month"])
	assert.Len(t, out["records"], 1)
	stats := out["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["present"])
	assert.EqualValues(t, 1, stats["total_days"])

	out = decode(t, v.call(t, h.History, http.MethodGet, "/v1/attendance/history?month=2026-02", "", 7))
	assert.Empty(t, out["records"])

	out = decode(t, v.call(t, h.History, http.MethodGet, "/v1/attendance/history", "", 7))
	assert.Equal(t, "2026-03", out["month"])

	rec = v.call(t, h.History, http.MethodGet, "/v1/attendance/history?month=March", "", 7)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
