package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/model"
)

const attendanceColumns = `id, student_id, class_id, date, status, registered_by, created_at`

func scanAttendance(row pgx.Row) (model.Attendance, error) {
	var att model.Attendance
	err := row.Scan(&att.ID, &att.StudentID, &att.ClassID, &att.Date, &att.Status, &att.RegisteredBy, &att.CreatedAt)
	return att, err
}

// AttendanceEntry is one student's status for a class on a date.
type AttendanceEntry struct {
	StudentID string
	Status    string
}

// SaveAttendanceBatch replaces the class's records for the date with the
// given entries in a single transaction; a failure on any row rolls back
// the whole day.
func (s *Store) SaveAttendanceBatch(ctx context.Context, classID string, date time.Time, entries []AttendanceEntry, registeredBy string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM attendance WHERE class_id = $1 AND date = $2`, classID, date); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, entry := range entries {
			if _, err := tx.Exec(ctx, `
				INSERT INTO attendance (id, student_id, class_id, date, status, registered_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, uuid.NewString(), entry.StudentID, classID, date, entry.Status, registeredBy, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListAttendanceByClass(ctx context.Context, classID string, from, to *time.Time) ([]model.Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE class_id = $1`
	args := []interface{}{classID}
	if from != nil {
		args = append(args, *from)
		query += ` AND date >= $2`
	}
	if to != nil {
		args = append(args, *to)
		if len(args) == 2 {
			query += ` AND date <= $2`
		} else {
			query += ` AND date <= $3`
		}
	}
	query += ` ORDER BY date DESC, student_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Attendance
	for rows.Next() {
		att, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, att)
	}
	return records, rows.Err()
}

func (s *Store) ListAttendanceByStudent(ctx context.Context, studentID string, from, to *time.Time) ([]model.Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE student_id = $1`
	args := []interface{}{studentID}
	if from != nil {
		args = append(args, *from)
		query += ` AND date >= $2`
	}
	if to != nil {
		args = append(args, *to)
		if len(args) == 2 {
			query += ` AND date <= $2`
		} else {
			query += ` AND date <= $3`
		}
	}
	query += ` ORDER BY date DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Attendance
	for rows.Next() {
		att, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, att)
	}
	return records, rows.Err()
}

func (s *Store) DeleteAttendance(ctx context.Context, attendanceID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attendance WHERE id = $1`, attendanceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteAttendanceByClass(ctx context.Context, classID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attendance WHERE class_id = $1`, classID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
