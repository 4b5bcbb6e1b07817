package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/qr-attendance/internal/clock"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/service"
	"github.com/iliyamo/qr-attendance/internal/tokenstore"
)

var testLoc = time.FixedZone("WIB", 7*60*60)

func at(hh, mm int) time.Time {
	return time.Date(2026, time.March, 2, hh, mm, 0, 0, testLoc)
}

// memRecords is an in-memory attendance table serving both the guard and
// the read endpoints.
type memRecords struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]model.AttendanceRecord
}

func newMemRecords() *memRecords { return &memRecords{rows: map[uint64]model.AttendanceRecord{}} }

func (m *memRecords) Find(_ context.Context, userID uint64, date time.Time) (*model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && sameDate(r.Date, date) {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRecords) Upsert(_ context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == 0 {
		for _, r := range m.rows {
			if r.UserID == rec.UserID && sameDate(r.Date, rec.Date) {
				return model.AttendanceRecord{}, repository.ErrAttendanceExists
			}
		}
		m.nextID++
		rec.ID = m.nextID
	}
	m.rows[rec.ID] = rec
	return rec, nil
}

func (m *memRecords) GetByID(_ context.Context, id uint64) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return model.AttendanceRecord{}, repository.ErrAttendanceNotFound
	}
	return r, nil
}

func (m *memRecords) ListByDate(_ context.Context, date time.Time) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttendanceRecord
	for _, r := range m.rows {
		if sameDate(r.Date, date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecords) ListByUserRange(_ context.Context, userID uint64, from, to time.Time) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttendanceRecord
	for _, r := range m.rows {
		if r.UserID == userID && !r.Date.Before(from) && r.Date.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecords) StatsByUser(ctx context.Context, userID uint64, from, to time.Time) (model.AttendanceStats, error) {
	recs, _ := m.ListByUserRange(ctx, userID, from, to)
	var s model.AttendanceStats
	for _, r := range recs {
		s.Add(r.Status)
	}
	return s, nil
}

func sameDate(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []service.AuditEntry
}

func (a *recordingAudit) Record(_ context.Context, e service.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

type env struct {
	e       *echo.Echo
	clk     *clock.Fake
	cfg     config.AttendanceConfig
	records *memRecords
	audit   *recordingAudit
	issuer  *service.QrIssuer
	guard   *service.AttendanceGuard
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.DefaultAttendanceConfig()
	cfg.Location = testLoc
	cfg.TokenStore = "memory"

	clk := clock.NewFake(at(9, 0))
	store := tokenstore.NewMemory(clk)
	records := newMemRecords()
	audit := &recordingAudit{}
	issuer := service.NewQrIssuer(store, cfg, clk, nil)
	guard := service.NewAttendanceGuard(issuer, store, records, audit, cfg, clk, nil)

	e := echo.New()
	e.Validator = NewValidator()
	return &env{e: e, clk: clk, cfg: cfg, records: records, audit: audit, issuer: issuer, guard: guard}
}

// call runs h with an optional JSON body, as userID (0 for anonymous),
// with the given path params as name/value pairs.
func (v *env) call(t *testing.T, h echo.HandlerFunc, method, target, body string, userID uint64, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := v.e.NewContext(req, rec)
	if userID != 0 {
		middleware.SetIdentity(c, userID, nil)
	}
	if len(params) > 0 {
		var names, values []string
		for i := 0; i+1 < len(params); i += 2 {
			names = append(names, params[i])
			values = append(values, params[i+1])
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	require.NoError(t, h(c))
	return rec
}

func (v *env) currentToken(t *testing.T, now time.Time) string {
	t.Helper()
	v.clk.Set(now)
	tok, err := v.issuer.CurrentToken(context.Background(), v.issuer.DetermineType(now), now)
	require.NoError(t, err)
	return tok.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
