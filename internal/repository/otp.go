package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/model"
)

const otpColumns = `id, email, code, user_role, expires_at, used, attempts, created_at`

func scanOTPCode(row pgx.Row) (model.OTPCode, error) {
	var code model.OTPCode
	err := row.Scan(&code.ID, &code.Email, &code.Code, &code.UserRole, &code.ExpiresAt, &code.Used, &code.Attempts, &code.CreatedAt)
	return code, err
}

// GetActiveCode returns the newest unused, unexpired code for an email.
func (s *Store) GetActiveCode(ctx context.Context, email string, now time.Time) (model.OTPCode, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+otpColumns+`
		FROM otp_codes
		WHERE email = $1 AND used = FALSE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, email, now)
	return scanOTPCode(row)
}

// InvalidateCodes marks every unused code for the email as used, so at most
// one code is relied upon at a time.
func (s *Store) InvalidateCodes(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx, `UPDATE otp_codes SET used = TRUE WHERE email = $1 AND used = FALSE`, email)
	return err
}

func (s *Store) InsertCode(ctx context.Context, code model.OTPCode) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO otp_codes (id, email, code, user_role, expires_at, used, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, 0, $6)
	`, id, code.Email, code.Code, code.UserRole, code.ExpiresAt, code.CreatedAt)
	return id, err
}

// FindCode returns the newest row matching the (email, code) pair exactly.
func (s *Store) FindCode(ctx context.Context, email, code string) (model.OTPCode, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+otpColumns+`
		FROM otp_codes
		WHERE email = $1 AND code = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, email, code)
	return scanOTPCode(row)
}

// IncrementAttempts bumps the failure counter on the email's unused codes.
func (s *Store) IncrementAttempts(ctx context.Context, email string) error {
	_, err := s.pool.Exec(ctx, `UPDATE otp_codes SET attempts = attempts + 1 WHERE email = $1 AND used = FALSE`, email)
	return err
}

func (s *Store) MarkCodeUsed(ctx context.Context, codeID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE otp_codes SET used = TRUE WHERE id = $1`, codeID)
	return err
}
