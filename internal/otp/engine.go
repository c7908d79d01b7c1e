package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/auth"
	"colegio/backend/internal/mail"
	"colegio/backend/internal/model"
)

var codeFormat = regexp.MustCompile(`^\d{6}$`)

// Store persists one-time codes.
type Store interface {
	GetActiveCode(ctx context.Context, email string, now time.Time) (model.OTPCode, error)
	InvalidateCodes(ctx context.Context, email string) error
	InsertCode(ctx context.Context, code model.OTPCode) (string, error)
	FindCode(ctx context.Context, email, code string) (model.OTPCode, error)
	IncrementAttempts(ctx context.Context, email string) error
	MarkCodeUsed(ctx context.Context, codeID string) error
}

// Directory resolves an email to an identity. Students are looked up first,
// then teachers.
type Directory interface {
	GetStudentByEmail(ctx context.Context, email string) (model.Student, error)
	GetTeacherByEmail(ctx context.Context, email string) (model.Teacher, error)
}

type Config struct {
	Expiration  time.Duration
	ResendAfter time.Duration
	MaxAttempts int
	JWTSecret   string
	JWTIssuer   string
	TokenTTL    time.Duration
}

type Engine struct {
	store     Store
	directory Directory
	mailer    mail.Mailer
	cfg       Config
	now       func() time.Time
	generate  func(length int) (string, error)
}

func NewEngine(store Store, directory Directory, mailer mail.Mailer, cfg Config) *Engine {
	return &Engine{
		store:     store,
		directory: directory,
		mailer:    mailer,
		cfg:       cfg,
		now:       time.Now,
		generate:  GenerateCode,
	}
}

// GenerateCode draws each digit independently and uniformly from 0-9;
// leading zeros are permitted.
func GenerateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// RequestResult reports how long the freshly issued code lives.
type RequestResult struct {
	Email            string
	ExpiresInMinutes int
}

// RequestCode issues a new code for the email: rate-limits reissues,
// invalidates all prior unused codes, persists the new one and dispatches
// it by email. A failed send burns the code and reports a delivery error.
func (e *Engine) RequestCode(ctx context.Context, email string) (RequestResult, error) {
	name, role, err := e.lookupIdentity(ctx, email)
	if err != nil {
		return RequestResult{}, err
	}

	now := e.now().UTC()
	active, err := e.store.GetActiveCode(ctx, email, now)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return RequestResult{}, err
	}
	if err == nil {
		elapsed := now.Sub(active.CreatedAt)
		if elapsed < e.cfg.ResendAfter {
			wait := int(math.Ceil((e.cfg.ResendAfter - elapsed).Seconds()))
			return RequestResult{}, &apperr.Error{
				Kind:       apperr.RateLimit,
				Code:       "too_many_requests",
				Message:    "espera antes de solicitar otro código",
				RetryAfter: wait,
			}
		}
	}

	if err := e.store.InvalidateCodes(ctx, email); err != nil {
		return RequestResult{}, err
	}

	code, err := e.generate(6)
	if err != nil {
		return RequestResult{}, err
	}

	record := model.OTPCode{
		Email:     email,
		Code:      code,
		UserRole:  role,
		ExpiresAt: now.Add(e.cfg.Expiration),
		CreatedAt: now,
	}
	codeID, err := e.store.InsertCode(ctx, record)
	if err != nil {
		return RequestResult{}, err
	}

	minutes := int(e.cfg.Expiration.Minutes())
	subject, htmlBody, textBody := mail.OTPEmail(name, code, minutes)
	if err := e.mailer.Send(email, subject, htmlBody, textBody); err != nil {
		// The code is unusable if the owner never received it.
		_ = e.store.MarkCodeUsed(ctx, codeID)
		return RequestResult{}, apperr.Wrap(apperr.Delivery, "email_send_failed", "no se pudo enviar el código, intenta de nuevo", err)
	}

	return RequestResult{Email: email, ExpiresInMinutes: minutes}, nil
}

// Profile is the role-conditional identity returned on a successful login.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastNameP string `json:"last_name_p"`
	LastNameM string `json:"last_name_m"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Grade     int    `json:"grade,omitempty"`
	Group     string `json:"group,omitempty"`
	Matricula string `json:"matricula,omitempty"`
}

// VerifyCode validates a submitted code and, on success, burns it and mints
// a signed identity token.
func (e *Engine) VerifyCode(ctx context.Context, email, code string) (string, Profile, error) {
	if !codeFormat.MatchString(code) {
		return "", Profile{}, apperr.New(apperr.Validation, "invalid_code_format", "el código debe ser de 6 dígitos")
	}

	record, err := e.store.FindCode(ctx, email, code)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := e.store.IncrementAttempts(ctx, email); err != nil {
			return "", Profile{}, err
		}
		return "", Profile{}, apperr.New(apperr.Authentication, "invalid_code", "código inválido")
	}
	if err != nil {
		return "", Profile{}, err
	}

	if record.Used {
		return "", Profile{}, apperr.New(apperr.Authentication, "code_already_used", "este código ya fue utilizado")
	}
	if record.ExpiresAt.Before(e.now().UTC()) {
		return "", Profile{}, apperr.New(apperr.Authentication, "code_expired", "el código ha expirado, solicita uno nuevo")
	}
	if record.Attempts >= e.cfg.MaxAttempts {
		if err := e.store.MarkCodeUsed(ctx, record.ID); err != nil {
			return "", Profile{}, err
		}
		return "", Profile{}, apperr.New(apperr.Authentication, "too_many_attempts", "demasiados intentos fallidos, solicita un nuevo código")
	}

	if err := e.store.MarkCodeUsed(ctx, record.ID); err != nil {
		return "", Profile{}, err
	}

	profile, err := e.profileForEmail(ctx, email, record.UserRole)
	if err != nil {
		return "", Profile{}, err
	}

	token, err := auth.NewToken(e.cfg.JWTSecret, e.cfg.JWTIssuer, e.cfg.TokenTTL, auth.Claims{
		UserID: profile.ID,
		Email:  profile.Email,
		Role:   profile.Role,
		Name:   profile.FirstName,
	})
	if err != nil {
		return "", Profile{}, err
	}
	return token, profile, nil
}

func (e *Engine) lookupIdentity(ctx context.Context, email string) (name, role string, err error) {
	student, err := e.directory.GetStudentByEmail(ctx, email)
	if err == nil {
		return student.FirstName + " " + student.LastNameP, model.RoleStudent, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", "", err
	}
	teacher, err := e.directory.GetTeacherByEmail(ctx, email)
	if err == nil {
		return teacher.FirstName + " " + teacher.LastNameP, model.RoleTeacher, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", "", err
	}
	return "", "", apperr.New(apperr.NotFound, "email_not_found", "email no registrado en el sistema")
}

func (e *Engine) profileForEmail(ctx context.Context, email, role string) (Profile, error) {
	switch role {
	case model.RoleStudent:
		student, err := e.directory.GetStudentByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Profile{}, apperr.New(apperr.NotFound, "user_not_found", "usuario no encontrado")
			}
			return Profile{}, err
		}
		return Profile{
			ID:        student.ID,
			FirstName: student.FirstName,
			LastNameP: student.LastNameP,
			LastNameM: student.LastNameM,
			Email:     student.Email,
			Role:      model.RoleStudent,
			Grade:     student.Grade,
			Group:     student.Group,
			Matricula: student.Matricula,
		}, nil
	default:
		teacher, err := e.directory.GetTeacherByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Profile{}, apperr.New(apperr.NotFound, "user_not_found", "usuario no encontrado")
			}
			return Profile{}, err
		}
		return Profile{
			ID:        teacher.ID,
			FirstName: teacher.FirstName,
			LastNameP: teacher.LastNameP,
			LastNameM: teacher.LastNameM,
			Email:     teacher.Email,
			Role:      model.RoleTeacher,
		}, nil
	}
}
