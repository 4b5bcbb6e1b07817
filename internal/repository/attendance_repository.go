package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/qr-attendance/internal/model"
)

const attendanceColumns = "id, user_id, date, check_in, check_out, has_checked_in, has_checked_out, status, notes, editor_id, edited_at, created_at, updated_at"

// AttendanceRepo stores one row per user per day in the `attendances`
// table.  DATETIME columns are written in UTC; the DATE column is the
// calendar day in loc, and records come back with Date set to midnight of
// that day in loc.
type AttendanceRepo struct {
	DB  *sql.DB
	loc *time.Location
}

// NewAttendanceRepo returns a repo whose calendar days are interpreted in
// loc.  A nil loc means time.Local.
func NewAttendanceRepo(db *sql.DB, loc *time.Location) *AttendanceRepo {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceRepo{DB: db, loc: loc}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AttendanceRepo) scan(row rowScanner) (model.AttendanceRecord, error) {
	var (
		rec                         model.AttendanceRecord
		date                        time.Time
		checkIn, checkOut, editedAt sql.NullTime
		editorID                    sql.NullInt64
		status                      string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &date, &checkIn, &checkOut,
		&rec.HasCheckedIn, &rec.HasCheckedOut, &status, &rec.Notes,
		&editorID, &editedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	// The driver returns DATE as midnight UTC; rebuild it in loc.
	y, m, d := date.Date()
	rec.Date = time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	rec.Status = model.AttendanceStatus(status)
	rec.CheckIn = r.timePtr(checkIn)
	rec.CheckOut = r.timePtr(checkOut)
	rec.EditedAt = r.timePtr(editedAt)
	if editorID.Valid {
		id := uint64(editorID.Int64)
		rec.EditorID = &id
	}
	return rec, nil
}

func (r *AttendanceRepo) timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.In(r.loc)
	return &t
}

// dateKey renders the calendar day of t in loc the way MySQL expects it.
func (r *AttendanceRepo) dateKey(t time.Time) string {
	return t.In(r.loc).Format("2006-01-02")
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func uintOrNil(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}

// Find returns the row of userID on date's calendar day, or (nil, nil)
// when there is none.
func (r *AttendanceRepo) Find(ctx context.Context, userID uint64, date time.Time) (*model.AttendanceRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+attendanceColumns+" FROM attendances WHERE user_id=? AND date=? LIMIT 1",
		userID, r.dateKey(date))
	rec, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByID fetches a row by primary key.
func (r *AttendanceRepo) GetByID(ctx context.Context, id uint64) (model.AttendanceRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+attendanceColumns+" FROM attendances WHERE id=? LIMIT 1", id)
	rec, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AttendanceRecord{}, ErrAttendanceNotFound
	}
	return rec, err
}

// Upsert inserts rec when its ID is zero and updates the row with that ID
// otherwise.  The stored row is read back and returned.  A second insert
// for the same user and day fails with ErrAttendanceExists.
func (r *AttendanceRepo) Upsert(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if rec.ID == 0 {
		res, err := r.DB.ExecContext(ctx,
			`INSERT INTO attendances (user_id, date, check_in, check_out, has_checked_in, has_checked_out, status, notes, editor_id, edited_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			rec.UserID, r.dateKey(rec.Date), utcOrNil(rec.CheckIn), utcOrNil(rec.CheckOut),
			rec.HasCheckedIn, rec.HasCheckedOut, string(rec.Status), rec.Notes,
			uintOrNil(rec.EditorID), utcOrNil(rec.EditedAt))
		if err != nil {
			if isDuplicate(err) {
				return model.AttendanceRecord{}, ErrAttendanceExists
			}
			return model.AttendanceRecord{}, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return model.AttendanceRecord{}, err
		}
		return r.GetByID(ctx, uint64(id))
	}

	_, err := r.DB.ExecContext(ctx,
		`UPDATE attendances SET check_in=?, check_out=?, has_checked_in=?, has_checked_out=?, status=?, notes=?, editor_id=?, edited_at=?
		 WHERE id=?`,
		utcOrNil(rec.CheckIn), utcOrNil(rec.CheckOut), rec.HasCheckedIn, rec.HasCheckedOut,
		string(rec.Status), rec.Notes, uintOrNil(rec.EditorID), utcOrNil(rec.EditedAt), rec.ID)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	return r.GetByID(ctx, rec.ID)
}

// ListByDate returns every row of the given day ordered by user.
func (r *AttendanceRepo) ListByDate(ctx context.Context, date time.Time) ([]model.AttendanceRecord, error) {
	return r.list(ctx,
		"SELECT "+attendanceColumns+" FROM attendances WHERE date=? ORDER BY user_id",
		r.dateKey(date))
}

// ListByUserRange returns userID's rows with from <= date < to, oldest
// first.
func (r *AttendanceRepo) ListByUserRange(ctx context.Context, userID uint64, from, to time.Time) ([]model.AttendanceRecord, error) {
	return r.list(ctx,
		"SELECT "+attendanceColumns+" FROM attendances WHERE user_id=? AND date>=? AND date<? ORDER BY date",
		userID, r.dateKey(from), r.dateKey(to))
}

func (r *AttendanceRepo) list(ctx context.Context, q string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttendanceRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StatsByUser counts userID's rows per status with from <= date < to.
func (r *AttendanceRepo) StatsByUser(ctx context.Context, userID uint64, from, to time.Time) (model.AttendanceStats, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM attendances WHERE user_id=? AND date>=? AND date<? GROUP BY status",
		userID, r.dateKey(from), r.dateKey(to))
	if err != nil {
		return model.AttendanceStats{}, err
	}
	defer rows.Close()

	var stats model.AttendanceStats
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return model.AttendanceStats{}, err
		}
		stats.AddN(model.AttendanceStatus(status), n)
	}
	return stats, rows.Err()
}
