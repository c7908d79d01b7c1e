package otp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/model"
)

type fakeOTPStore struct {
	codes  []model.OTPCode
	nextID int
}

func (f *fakeOTPStore) GetActiveCode(_ context.Context, email string, now time.Time) (model.OTPCode, error) {
	var newest *model.OTPCode
	for i := range f.codes {
		c := &f.codes[i]
		if c.Email != email || c.Used || !c.ExpiresAt.After(now) {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return model.OTPCode{}, pgx.ErrNoRows
	}
	return *newest, nil
}

func (f *fakeOTPStore) InvalidateCodes(_ context.Context, email string) error {
	for i := range f.codes {
		if f.codes[i].Email == email {
			f.codes[i].Used = true
		}
	}
	return nil
}

func (f *fakeOTPStore) InsertCode(_ context.Context, code model.OTPCode) (string, error) {
	f.nextID++
	code.ID = fmt.Sprintf("code-%d", f.nextID)
	f.codes = append(f.codes, code)
	return code.ID, nil
}

func (f *fakeOTPStore) FindCode(_ context.Context, email, code string) (model.OTPCode, error) {
	var newest *model.OTPCode
	for i := range f.codes {
		c := &f.codes[i]
		if c.Email != email || c.Code != code {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return model.OTPCode{}, pgx.ErrNoRows
	}
	return *newest, nil
}

func (f *fakeOTPStore) IncrementAttempts(_ context.Context, email string) error {
	for i := range f.codes {
		if f.codes[i].Email == email && !f.codes[i].Used {
			f.codes[i].Attempts++
		}
	}
	return nil
}

func (f *fakeOTPStore) MarkCodeUsed(_ context.Context, codeID string) error {
	for i := range f.codes {
		if f.codes[i].ID == codeID {
			f.codes[i].Used = true
			return nil
		}
	}
	return errors.New("code not found")
}

func (f *fakeOTPStore) byID(id string) *model.OTPCode {
	for i := range f.codes {
		if f.codes[i].ID == id {
			return &f.codes[i]
		}
	}
	return nil
}

type fakeDirectory struct {
	students map[string]model.Student
	teachers map[string]model.Teacher
}

func (f *fakeDirectory) GetStudentByEmail(_ context.Context, email string) (model.Student, error) {
	if st, ok := f.students[email]; ok {
		return st, nil
	}
	return model.Student{}, pgx.ErrNoRows
}

func (f *fakeDirectory) GetTeacherByEmail(_ context.Context, email string) (model.Teacher, error) {
	if tc, ok := f.teachers[email]; ok {
		return tc, nil
	}
	return model.Teacher{}, pgx.ErrNoRows
}

type fakeMailer struct {
	sent []string
	fail bool
}

func (f *fakeMailer) Send(to, _, _, _ string) error {
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, to)
	return nil
}

const testEmail = "ana@colegio.mx"

func newTestEngine(t *testing.T) (*Engine, *fakeOTPStore, *fakeMailer, *time.Time) {
	t.Helper()
	store := &fakeOTPStore{}
	directory := &fakeDirectory{
		students: map[string]model.Student{
			testEmail: {
				ID:        "s1",
				FirstName: "Ana",
				LastNameP: "García",
				Grade:     3,
				Group:     "B",
				Matricula: "A0001",
				Email:     testEmail,
			},
		},
		teachers: map[string]model.Teacher{
			"luis@colegio.mx": {
				ID:        "t1",
				FirstName: "Luis",
				LastNameP: "Pérez",
				Email:     "luis@colegio.mx",
			},
		},
	}
	mailer := &fakeMailer{}
	engine := NewEngine(store, directory, mailer, Config{
		Expiration:  10 * time.Minute,
		ResendAfter: 60 * time.Second,
		MaxAttempts: 3,
		JWTSecret:   "test-secret",
		JWTIssuer:   "colegio-test",
		TokenTTL:    24 * time.Hour,
	})

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	engine.generate = func(int) (string, error) { return "123456", nil }
	return engine, store, mailer, &now
}

func TestRequestCodeIssuesAndMails(t *testing.T) {
	engine, store, mailer, _ := newTestEngine(t)

	result, err := engine.RequestCode(context.Background(), testEmail)
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if result.ExpiresInMinutes != 10 {
		t.Fatalf("expires = %d minutes, want 10", result.ExpiresInMinutes)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != testEmail {
		t.Fatalf("mail recipients = %v", mailer.sent)
	}
	if len(store.codes) != 1 || store.codes[0].UserRole != model.RoleStudent {
		t.Fatalf("stored codes = %+v", store.codes)
	}
}

func TestRequestCodeUnknownEmail(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.RequestCode(context.Background(), "nadie@colegio.mx")
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRequestCodeRateLimited(t *testing.T) {
	engine, _, _, now := newTestEngine(t)

	if _, err := engine.RequestCode(context.Background(), testEmail); err != nil {
		t.Fatalf("first request: %v", err)
	}

	*now = now.Add(30 * time.Second)
	_, err := engine.RequestCode(context.Background(), testEmail)
	if !apperr.IsKind(err, apperr.RateLimit) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.RetryAfter != 30 {
		t.Fatalf("retry_after = %v, want 30", err)
	}
}

func TestRequestCodeAfterWindowInvalidatesOld(t *testing.T) {
	engine, store, _, now := newTestEngine(t)

	if _, err := engine.RequestCode(context.Background(), testEmail); err != nil {
		t.Fatalf("first request: %v", err)
	}
	firstID := store.codes[0].ID

	*now = now.Add(61 * time.Second)
	if _, err := engine.RequestCode(context.Background(), testEmail); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if !store.byID(firstID).Used {
		t.Fatal("prior code must be invalidated by the reissue")
	}
	if len(store.codes) != 2 {
		t.Fatalf("stored %d codes, want 2", len(store.codes))
	}
}

func TestRequestCodeSendFailureBurnsCode(t *testing.T) {
	engine, store, mailer, _ := newTestEngine(t)
	mailer.fail = true

	_, err := engine.RequestCode(context.Background(), testEmail)
	if !apperr.IsKind(err, apperr.Delivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if len(store.codes) != 1 || !store.codes[0].Used {
		t.Fatalf("undelivered code must be burned, got %+v", store.codes)
	}
}

func TestVerifyCodeSuccess(t *testing.T) {
	engine, store, _, _ := newTestEngine(t)

	if _, err := engine.RequestCode(context.Background(), testEmail); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}

	token, profile, err := engine.VerifyCode(context.Background(), testEmail, "123456")
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if token == "" {
		t.Fatal("expected a signed token")
	}
	if profile.ID != "s1" || profile.Role != model.RoleStudent {
		t.Fatalf("profile = %+v", profile)
	}
	if profile.Grade != 3 || profile.Group != "B" || profile.Matricula != "A0001" {
		t.Fatalf("student fields missing from profile: %+v", profile)
	}
	if !store.codes[0].Used {
		t.Fatal("verified code must be single use")
	}
}

func TestVerifyCodeReuseRejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if _, err := engine.RequestCode(context.Background(), testEmail); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if _, _, err := engine.VerifyCode(context.Background(), testEmail, "123456"); err != nil {
		t.Fatalf("first VerifyCode: %v", err)
	}

	_, _, err := engine.VerifyCode(context.Background(), testEmail, "123456")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "code_already_used" {
		t.Fatalf("expected code_already_used, got %v", err)
	}
}

func TestVerifyCodeExpired(t *testing.T) {
	engine, _, _, now := newTestEngine(t)

	if _, err := engine.RequestCode(context.Background(), testEmail); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}

	*now = now.Add(11 * time.Minute)
	_, _, err := engine.VerifyCode(context.Background(), testEmail, "123456")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "code_expired" {
		t.Fatalf("expected code_expired, got %v", err)
	}
}

func TestVerifyCodeBurnsAfterMaxAttempts(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	if _, err := engine.RequestCode(context.Background(), testEmail); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, _, err := engine.VerifyCode(context.Background(), testEmail, "000000")
		var appErr *apperr.Error
		if !errors.As(err, &appErr) || appErr.Code != "invalid_code" {
			t.Fatalf("attempt %d: expected invalid_code, got %v", i+1, err)
		}
	}

	// The correct code is now worthless.
	_, _, err := engine.VerifyCode(context.Background(), testEmail, "123456")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "too_many_attempts" {
		t.Fatalf("expected too_many_attempts, got %v", err)
	}

	_, _, err = engine.VerifyCode(context.Background(), testEmail, "123456")
	if !errors.As(err, &appErr) || appErr.Code != "code_already_used" {
		t.Fatalf("burned code must stay dead, got %v", err)
	}
}

func TestVerifyCodeFormat(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		_, _, err := engine.VerifyCode(context.Background(), testEmail, code)
		if !apperr.IsKind(err, apperr.Validation) {
			t.Fatalf("code %q: expected validation error, got %v", code, err)
		}
	}
}

func TestRequestCodeTeacherRole(t *testing.T) {
	engine, store, _, _ := newTestEngine(t)

	if _, err := engine.RequestCode(context.Background(), "luis@colegio.mx"); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if store.codes[0].UserRole != model.RoleTeacher {
		t.Fatalf("role = %s, want teacher", store.codes[0].UserRole)
	}

	_, profile, err := engine.VerifyCode(context.Background(), "luis@colegio.mx", "123456")
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if profile.Role != model.RoleTeacher || profile.Matricula != "" {
		t.Fatalf("profile = %+v", profile)
	}
}

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateCode(6)
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if !codeFormat.MatchString(code) {
			t.Fatalf("code %q is not 6 digits", code)
		}
	}
}
