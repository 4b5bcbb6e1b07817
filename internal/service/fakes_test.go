package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/tokenstore"
)

var errBoom = errors.New("boom")

// fakeLedger keeps rows in memory and enforces the (user_id, date) unique
// key like the MySQL table does.
type fakeLedger struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]model.AttendanceRecord

	findFn   func(userID uint64, date time.Time) error
	upsertFn func(rec model.AttendanceRecord) error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[uint64]model.AttendanceRecord)}
}

func (l *fakeLedger) Find(_ context.Context, userID uint64, date time.Time) (*model.AttendanceRecord, error) {
	if l.findFn != nil {
		if err := l.findFn(userID, date); err != nil {
			return nil, err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rows {
		if r.UserID == userID && r.Date.Equal(date) {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) Upsert(_ context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if l.upsertFn != nil {
		if err := l.upsertFn(rec); err != nil {
			return model.AttendanceRecord{}, err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec.ID == 0 {
		for _, r := range l.rows {
			if r.UserID == rec.UserID && r.Date.Equal(rec.Date) {
				return model.AttendanceRecord{}, repository.ErrAttendanceExists
			}
		}
		l.nextID++
		rec.ID = l.nextID
		rec.CreatedAt = time.Now()
	} else if _, ok := l.rows[rec.ID]; !ok {
		return model.AttendanceRecord{}, repository.ErrAttendanceNotFound
	}
	rec.UpdatedAt = time.Now()
	l.rows[rec.ID] = rec
	return rec, nil
}

// seed stores rec as-is and returns it with its assigned id.
func (l *fakeLedger) seed(rec model.AttendanceRecord) model.AttendanceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	rec.ID = l.nextID
	l.rows[rec.ID] = rec
	return rec
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (a *fakeAudit) Record(_ context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return a.err
}

func (a *fakeAudit) all() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...)
}

// flakyStore wraps a Store and fails the operations whose fn returns an
// error.
type flakyStore struct {
	tokenstore.Store
	getFn func(key string) error
	putFn func(key string) error
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.getFn != nil {
		if err := s.getFn(key); err != nil {
			return "", false, err
		}
	}
	return s.Store.Get(ctx, key)
}

func (s *flakyStore) PutWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.putFn != nil {
		if err := s.putFn(key); err != nil {
			return err
		}
	}
	return s.Store.PutWithTTL(ctx, key, value, ttl)
}

type fakeDirectory struct {
	ids []uint64
	err error
}

func (d fakeDirectory) ListActiveIDsByRole(_ context.Context, role string) ([]uint64, error) {
	if role != model.RoleEmployee {
		return nil, nil
	}
	return d.ids, d.err
}
