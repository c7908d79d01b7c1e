package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/model"
)

// Tx-scoped inserts used by the bulk import endpoints. Accepted rows of a
// batch commit together or not at all.

func InsertStudentTx(ctx context.Context, tx pgx.Tx, st model.Student) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO students (id, first_name, last_name_p, last_name_m, grade, group_name, matricula, email, curp, phone, address, birth_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, id, st.FirstName, st.LastNameP, st.LastNameM, st.Grade, st.Group, st.Matricula, st.Email, st.CURP, st.Phone, st.Address, st.BirthDate, time.Now().UTC())
	return id, err
}

func InsertTeacherTx(ctx context.Context, tx pgx.Tx, tc model.Teacher) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO teachers (id, first_name, last_name_p, last_name_m, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, tc.FirstName, tc.LastNameP, tc.LastNameM, tc.Email, tc.Phone, time.Now().UTC())
	return id, err
}

func InsertClassTx(ctx context.Context, tx pgx.Tx, cl model.Class) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO classes (id, teacher_id, name, code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, cl.TeacherID, cl.Name, cl.Code, time.Now().UTC())
	return id, err
}
