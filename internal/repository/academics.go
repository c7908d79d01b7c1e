package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/model"
)

const classColumns = `id, teacher_id, name, code, created_at`

func scanClass(row pgx.Row) (model.Class, error) {
	var cl model.Class
	err := row.Scan(&cl.ID, &cl.TeacherID, &cl.Name, &cl.Code, &cl.CreatedAt)
	return cl, err
}

func (s *Store) GetClassByID(ctx context.Context, classID string) (model.Class, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, classID)
	return scanClass(row)
}

func (s *Store) ListClasses(ctx context.Context) ([]model.Class, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+classColumns+` FROM classes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []model.Class
	for rows.Next() {
		cl, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, cl)
	}
	return classes, rows.Err()
}

func (s *Store) CreateClass(ctx context.Context, cl model.Class) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classes (id, teacher_id, name, code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, cl.TeacherID, cl.Name, cl.Code, time.Now().UTC())
	return id, err
}

func (s *Store) UpdateClass(ctx context.Context, cl model.Class) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE classes SET teacher_id = $1, name = $2, code = $3 WHERE id = $4
	`, cl.TeacherID, cl.Name, cl.Code, cl.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteClass(ctx context.Context, classID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM classes WHERE id = $1`, classID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ClassCodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM classes WHERE code = $1`, code).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClassOwnedByTeacher answers the ownership question behind every
// teacher-scoped mutation.
func (s *Store) ClassOwnedByTeacher(ctx context.Context, classID, teacherID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM classes WHERE id = $1 AND teacher_id = $2`, classID, teacherID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TeacherClassSummary is a class row plus its enrollment count, used by the
// teacher's notification targets catalog.
type TeacherClassSummary struct {
	Class        model.Class
	StudentCount int
}

func (s *Store) ListClassesByTeacher(ctx context.Context, teacherID string) ([]TeacherClassSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.teacher_id, c.name, c.code, c.created_at, COUNT(e.student_id)
		FROM classes c
		LEFT JOIN enrollments e ON e.class_id = c.id
		WHERE c.teacher_id = $1
		GROUP BY c.id, c.teacher_id, c.name, c.code, c.created_at
		ORDER BY c.name
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []TeacherClassSummary
	for rows.Next() {
		var summary TeacherClassSummary
		if err := rows.Scan(
			&summary.Class.ID,
			&summary.Class.TeacherID,
			&summary.Class.Name,
			&summary.Class.Code,
			&summary.Class.CreatedAt,
			&summary.StudentCount,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func (s *Store) ListClassesByStudent(ctx context.Context, studentID string) ([]model.Class, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.teacher_id, c.name, c.code, c.created_at
		FROM classes c
		JOIN enrollments e ON e.class_id = c.id
		WHERE e.student_id = $1
		ORDER BY c.name
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []model.Class
	for rows.Next() {
		cl, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, cl)
	}
	return classes, rows.Err()
}

func (s *Store) StudentClassIDs(ctx context.Context, studentID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT class_id FROM enrollments WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListEnrolledStudents(ctx context.Context, classID string) ([]model.Student, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.first_name, s.last_name_p, s.last_name_m, s.grade, s.group_name, s.matricula, s.email, s.curp, s.phone, s.address, s.birth_date, s.created_at
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.class_id = $1
		ORDER BY s.last_name_p, s.last_name_m, s.first_name
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// ListStudentsOfTeacher returns the distinct students enrolled in any class
// owned by the teacher.
func (s *Store) ListStudentsOfTeacher(ctx context.Context, teacherID string) ([]model.Student, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT s.id, s.first_name, s.last_name_p, s.last_name_m, s.grade, s.group_name, s.matricula, s.email, s.curp, s.phone, s.address, s.birth_date, s.created_at
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		JOIN classes c ON c.id = e.class_id
		WHERE c.teacher_id = $1
		ORDER BY s.grade, s.group_name, s.last_name_p, s.last_name_m, s.first_name
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *Store) EnrollmentExists(ctx context.Context, studentID, classID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2`, studentID, classID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) CreateEnrollment(ctx context.Context, studentID, classID string) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrollments (id, student_id, class_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, studentID, classID, time.Now().UTC())
	return id, err
}

func (s *Store) DeleteEnrollment(ctx context.Context, enrollmentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM enrollments WHERE id = $1`, enrollmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) GetEnrollmentID(ctx context.Context, studentID, classID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM enrollments WHERE student_id = $1 AND class_id = $2`, studentID, classID).Scan(&id)
	return id, err
}

// CountOwnedStudents counts how many of studentIDs join to a class owned by
// the teacher. Creation-time targeting authorization fails closed unless the
// count matches the request exactly.
func (s *Store) CountOwnedStudents(ctx context.Context, teacherID string, studentIDs []string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT e.student_id)
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		WHERE c.teacher_id = $1 AND e.student_id = ANY($2)
	`, teacherID, studentIDs).Scan(&count)
	return count, err
}

func (s *Store) CountOwnedClasses(ctx context.Context, teacherID string, classIDs []string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM classes WHERE teacher_id = $1 AND id = ANY($2)
	`, teacherID, classIDs).Scan(&count)
	return count, err
}

// CountStudentsInGradeGroup counts the teacher's enrolled students matching
// a grade and, when group is non-nil, a group.
func (s *Store) CountStudentsInGradeGroup(ctx context.Context, teacherID string, grade int, group *string) (int, error) {
	query := `
		SELECT COUNT(DISTINCT s.id)
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		JOIN classes c ON c.id = e.class_id
		WHERE c.teacher_id = $1 AND s.grade = $2`
	args := []interface{}{teacherID, grade}
	if group != nil {
		query += ` AND s.group_name = $3`
		args = append(args, *group)
	}
	var count int
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

type DashboardStats struct {
	Students             int
	Teachers             int
	Classes              int
	PendingNotifications int
}

func (s *Store) GetDashboardStats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM students),
			(SELECT COUNT(*) FROM teachers),
			(SELECT COUNT(*) FROM classes),
			(SELECT COUNT(*) FROM notifications WHERE status = 'pending')
	`).Scan(&stats.Students, &stats.Teachers, &stats.Classes, &stats.PendingNotifications)
	return stats, err
}
