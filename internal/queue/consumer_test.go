package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/qr-attendance/internal/model"
)

func TestFormatAuditLine(t *testing.T) {
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ev := AuditEvent{
		ID:         "e1",
		Action:     "submit_attendance",
		ActorID:    7,
		UserID:     7,
		After:      &model.AttendanceRecord{Status: model.StatusPresent, CheckIn: &in, HasCheckedIn: true},
		OccurredAt: "2026-03-02T09:00:00Z",
	}
	line := FormatAuditLine(ev)
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "submit_attendance")
	assert.Contains(t, line, "status=->present")
	assert.Contains(t, line, "check_in=2026-03-02T09:00:00Z")
	assert.Contains(t, line, "check_out=-")
}

func TestAuditConsumer_HandleAppendsLine(t *testing.T) {
	dir := t.TempDir()
	c := &AuditConsumer{LogDir: dir}

	body, err := json.Marshal(AuditEvent{ID: "e2", Action: "edit_attendance", ActorID: 1, UserID: 9, OccurredAt: "2026-03-02T10:00:00Z"})
	require.NoError(t, err)
	require.NoError(t, c.handle(body))
	require.NoError(t, c.handle(body))

	data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "edit_attendance"))
}

func TestAuditConsumer_HandleRejectsGarbage(t *testing.T) {
	c := &AuditConsumer{LogDir: t.TempDir()}
	assert.Error(t, c.handle([]byte("not json")))
	assert.Error(t, c.handle([]byte(`{"id":"x"}`)))
}
