package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/qr-attendance/internal/model"
)

func seedCheckIn(t *testing.T, v *env, userID uint64) model.AttendanceRecord {
	t.Helper()
	a := NewAttendanceHandler(v.guard, v.records, v.cfg, v.clk, nil)
	rec := v.call(t, a.Scan, http.MethodPost, "/", fmt.Sprintf(`{"token":%q}`, v.currentToken(t, at(9, 0))), userID)
	require.Equal(t, http.StatusOK, rec.Code)
	r, err := v.records.Find(context.Background(), userID, at(0, 0))
	require.NoError(t, err)
	require.NotNil(t, r)
	return *r
}

func TestHRList(t *testing.T) {
	v := newEnv(t)
	seedCheckIn(t, v, 7)
	seedCheckIn(t, v, 8)
	h := NewHRAttendanceHandler(v.guard, v.records, v.cfg, v.clk, nil)

	rec := v.call(t, h.List, http.MethodGet, "/v1/hr/attendance?date=2026-03-02", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Len(t, out["records"], 2)
	assert.EqualValues(t, 2, out["stats"].(map[string]any)["present"])

	out = decode(t, v.call(t, h.List, http.MethodGet, "/v1/hr/attendance?date=2026-03-01", "", 1))
	assert.Empty(t, out["records"])

	rec = v.call(t, h.List, http.MethodGet, "/v1/hr/attendance?date=yesterday", "", 1)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHRGet(t *testing.T) {
	v := newEnv(t)
	r := seedCheckIn(t, v, 7)
	h := NewHRAttendanceHandler(v.guard, v.records, v.cfg, v.clk, nil)

	rec := v.call(t, h.Get, http.MethodGet, "/", "", 1, "id", fmt.Sprint(r.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, decode(t, rec)["user_id"])

	rec = v.call(t, h.Get, http.MethodGet, "/", "", 1, "id", "999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = v.call(t, h.Get, http.MethodGet, "/", "", 1, "id", "abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHRPatch(t *testing.T) {
	v := newEnv(t)
	r := seedCheckIn(t, v, 7)
	v.clk.Set(at(18, 0))
	h := NewHRAttendanceHandler(v.guard, v.records, v.cfg, v.clk, nil)
	id := fmt.Sprint(r.ID)

	rec := v.call(t, h.Patch, http.MethodPatch, "/", `{"check_out":"2026-03-02T17:05:00+07:00","notes":"forgot to scan"}`, 1, "id", id)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, true, out["has_checked_out"])
	assert.Equal(t, "forgot to scan", out["notes"])
	assert.EqualValues(t, 1, out["editor_id"])

	rec = v.call(t, h.Patch, http.MethodPatch, "/", `{"status":"on_holiday"}`, 1, "id", id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.call(t, h.Patch, http.MethodPatch, "/", `{}`, 1, "id", id)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = v.call(t, h.Patch, http.MethodPatch, "/", `{"check_out":"2026-03-02T15:00:00+07:00"}`, 1, "id", id)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "check_out_too_early", decode(t, rec)["error"])

	rec = v.call(t, h.Patch, http.MethodPatch, "/", `{"status":"excused_sick"}`, 1, "id", "404")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = v.call(t, h.Patch, http.MethodPatch, "/", `{"status":"excused_sick"}`, 1, "id", id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "excused_sick", decode(t, rec)["status"])

	assert.Len(t, v.audit.entries, 3)
}
