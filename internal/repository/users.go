package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/model"
)

const studentColumns = `id, first_name, last_name_p, last_name_m, grade, group_name, matricula, email, curp, phone, address, birth_date, created_at`

func scanStudent(row pgx.Row) (model.Student, error) {
	var st model.Student
	err := row.Scan(
		&st.ID,
		&st.FirstName,
		&st.LastNameP,
		&st.LastNameM,
		&st.Grade,
		&st.Group,
		&st.Matricula,
		&st.Email,
		&st.CURP,
		&st.Phone,
		&st.Address,
		&st.BirthDate,
		&st.CreatedAt,
	)
	return st, err
}

func (s *Store) GetStudentByEmail(ctx context.Context, email string) (model.Student, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE email = $1`, email)
	return scanStudent(row)
}

func (s *Store) GetStudentByID(ctx context.Context, studentID string) (model.Student, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, studentID)
	return scanStudent(row)
}

func (s *Store) ListStudents(ctx context.Context, grade *int, group *string) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE 1=1`
	args := []interface{}{}
	if grade != nil {
		args = append(args, *grade)
		query += ` AND grade = $1`
	}
	if group != nil {
		args = append(args, *group)
		if len(args) == 1 {
			query += ` AND group_name = $1`
		} else {
			query += ` AND group_name = $2`
		}
	}
	query += ` ORDER BY grade, group_name, last_name_p, last_name_m, first_name`

	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Store) CreateStudent(ctx context.Context, st model.Student) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO students (id, first_name, last_name_p, last_name_m, grade, group_name, matricula, email, curp, phone, address, birth_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, id, st.FirstName, st.LastNameP, st.LastNameM, st.Grade, st.Group, st.Matricula, st.Email, st.CURP, st.Phone, st.Address, st.BirthDate, time.Now().UTC())
	return id, err
}

func (s *Store) UpdateStudent(ctx context.Context, st model.Student) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE students
		SET first_name = $1, last_name_p = $2, last_name_m = $3, grade = $4, group_name = $5,
		    matricula = $6, email = $7, curp = $8, phone = $9, address = $10, birth_date = $11
		WHERE id = $12
	`, st.FirstName, st.LastNameP, st.LastNameM, st.Grade, st.Group, st.Matricula, st.Email, st.CURP, st.Phone, st.Address, st.BirthDate, st.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UpdateStudentContact(ctx context.Context, studentID, firstName, lastNameP, lastNameM string, phone, address *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE students SET first_name = $1, last_name_p = $2, last_name_m = $3, phone = $4, address = $5
		WHERE id = $6
	`, firstName, lastNameP, lastNameM, phone, address, studentID)
	return err
}

func (s *Store) DeleteStudent(ctx context.Context, studentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, studentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteStudentsByGradeGroup(ctx context.Context, grade int, group string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM students WHERE grade = $1 AND group_name = $2`, grade, group)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) StudentMatriculaExists(ctx context.Context, matricula string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM students WHERE matricula = $1`, matricula).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ShiftGrades moves students one grade up (delta=1) or down (delta=-1),
// clamped to the 1..6 range; grade/group narrow the slice unless all is set.
func (s *Store) ShiftGrades(ctx context.Context, delta int, grade *int, group *string, all bool) (int64, error) {
	query := `UPDATE students SET grade = grade + $1 WHERE `
	if delta > 0 {
		query += `grade < 6`
	} else {
		query += `grade > 1`
	}
	args := []interface{}{delta}
	if !all {
		if grade != nil {
			args = append(args, *grade)
			query += ` AND grade = $2`
		}
		if group != nil {
			args = append(args, *group)
			if len(args) == 2 {
				query += ` AND group_name = $2`
			} else {
				query += ` AND group_name = $3`
			}
		}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DistinctGrades(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT grade FROM students ORDER BY grade`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []int
	for rows.Next() {
		var grade int
		if err := rows.Scan(&grade); err != nil {
			return nil, err
		}
		grades = append(grades, grade)
	}
	return grades, rows.Err()
}

func (s *Store) DistinctGroups(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT group_name FROM students ORDER BY group_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var group string
		if err := rows.Scan(&group); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

const teacherColumns = `id, first_name, last_name_p, last_name_m, email, phone, created_at`

func scanTeacher(row pgx.Row) (model.Teacher, error) {
	var tc model.Teacher
	err := row.Scan(&tc.ID, &tc.FirstName, &tc.LastNameP, &tc.LastNameM, &tc.Email, &tc.Phone, &tc.CreatedAt)
	return tc, err
}

func (s *Store) GetTeacherByEmail(ctx context.Context, email string) (model.Teacher, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE email = $1`, email)
	return scanTeacher(row)
}

func (s *Store) GetTeacherByID(ctx context.Context, teacherID string) (model.Teacher, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, teacherID)
	return scanTeacher(row)
}

func (s *Store) ListTeachers(ctx context.Context) ([]model.Teacher, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+teacherColumns+` FROM teachers ORDER BY last_name_p, last_name_m, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []model.Teacher
	for rows.Next() {
		tc, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		teachers = append(teachers, tc)
	}
	return teachers, rows.Err()
}

func (s *Store) CreateTeacher(ctx context.Context, tc model.Teacher) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teachers (id, first_name, last_name_p, last_name_m, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, tc.FirstName, tc.LastNameP, tc.LastNameM, tc.Email, tc.Phone, time.Now().UTC())
	return id, err
}

func (s *Store) UpdateTeacher(ctx context.Context, tc model.Teacher) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE teachers SET first_name = $1, last_name_p = $2, last_name_m = $3, email = $4, phone = $5
		WHERE id = $6
	`, tc.FirstName, tc.LastNameP, tc.LastNameM, tc.Email, tc.Phone, tc.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UpdateTeacherContact(ctx context.Context, teacherID, firstName, lastNameP, lastNameM string, phone *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE teachers SET first_name = $1, last_name_p = $2, last_name_m = $3, phone = $4
		WHERE id = $5
	`, firstName, lastNameP, lastNameM, phone, teacherID)
	return err
}

func (s *Store) DeleteTeacher(ctx context.Context, teacherID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM teachers WHERE id = $1`, teacherID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) TeacherEmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM teachers WHERE email = $1`, email).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const adminColumns = `id, email, password_hash, first_name, last_name_p, last_name_m, phone, created_at`

func scanAdmin(row pgx.Row) (model.Administrator, error) {
	var admin model.Administrator
	err := row.Scan(&admin.ID, &admin.Email, &admin.PasswordHash, &admin.FirstName, &admin.LastNameP, &admin.LastNameM, &admin.Phone, &admin.CreatedAt)
	return admin, err
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM administrators`).Scan(&count)
	return count, err
}

func (s *Store) GetAdminByEmail(ctx context.Context, email string) (model.Administrator, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM administrators WHERE email = $1`, email)
	return scanAdmin(row)
}

func (s *Store) GetAdminByID(ctx context.Context, adminID string) (model.Administrator, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM administrators WHERE id = $1`, adminID)
	return scanAdmin(row)
}

func (s *Store) CreateAdmin(ctx context.Context, admin model.Administrator) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO administrators (id, email, password_hash, first_name, last_name_p, last_name_m, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, admin.Email, admin.PasswordHash, admin.FirstName, admin.LastNameP, admin.LastNameM, admin.Phone, time.Now().UTC())
	return id, err
}

func (s *Store) UpdateAdminPassword(ctx context.Context, adminID, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE administrators SET password_hash = $1 WHERE id = $2`, passwordHash, adminID)
	return err
}

func (s *Store) AdminEmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM administrators WHERE email = $1`, email).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
