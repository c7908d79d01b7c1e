package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"colegio/backend/internal/auth"
	"colegio/backend/internal/config"
	"colegio/backend/internal/db"
	internalhttp "colegio/backend/internal/http"
	"colegio/backend/internal/mail"
	"colegio/backend/internal/model"
	"colegio/backend/internal/repository"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("COLEGIO_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("COLEGIO_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	createSchema(t, pool)
	return pool
}

func createSchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id TEXT PRIMARY KEY, first_name TEXT NOT NULL, last_name_p TEXT NOT NULL,
			last_name_m TEXT NOT NULL DEFAULT '', grade INT NOT NULL, group_name TEXT NOT NULL,
			matricula TEXT NOT NULL UNIQUE, email TEXT NOT NULL, curp TEXT, phone TEXT,
			address TEXT, birth_date TIMESTAMPTZ, created_at TIMESTAMPTZ NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS teachers (
			id TEXT PRIMARY KEY, first_name TEXT NOT NULL, last_name_p TEXT NOT NULL,
			last_name_m TEXT NOT NULL DEFAULT '', email TEXT NOT NULL UNIQUE, phone TEXT,
			created_at TIMESTAMPTZ NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS administrators (
			id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL, last_name_p TEXT NOT NULL, last_name_m TEXT NOT NULL DEFAULT '',
			phone TEXT, created_at TIMESTAMPTZ NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS classes (
			id TEXT PRIMARY KEY, teacher_id TEXT NOT NULL, name TEXT NOT NULL,
			code TEXT NOT NULL UNIQUE, created_at TIMESTAMPTZ NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS enrollments (
			id TEXT PRIMARY KEY, student_id TEXT NOT NULL, class_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL, UNIQUE (student_id, class_id))`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY, title TEXT NOT NULL, message TEXT NOT NULL,
			target_mode TEXT NOT NULL, target_payload TEXT NOT NULL DEFAULT '[]',
			target_grade INT, target_group TEXT, status TEXT NOT NULL,
			created_by_id TEXT NOT NULL, created_by_role TEXT NOT NULL,
			approved_by_id TEXT, created_at TIMESTAMPTZ NOT NULL, approved_at TIMESTAMPTZ)`,
		`CREATE TABLE IF NOT EXISTS otp_codes (
			id TEXT PRIMARY KEY, email TEXT NOT NULL, code TEXT NOT NULL,
			user_role TEXT NOT NULL, expires_at TIMESTAMPTZ NOT NULL,
			used BOOLEAN NOT NULL DEFAULT FALSE, attempts INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id TEXT PRIMARY KEY, student_id TEXT NOT NULL, class_id TEXT NOT NULL,
			date TIMESTAMPTZ NOT NULL, status TEXT NOT NULL, registered_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("schema setup: %v", err)
		}
	}
}

func testApp(t *testing.T, pool *pgxpool.Pool) (*httptest.Server, config.Config) {
	t.Helper()
	cfg := config.Config{
		JWTSecret:      "test-secret",
		JWTIssuer:      "test-issuer",
		TokenTTL:       15 * time.Minute,
		CookieName:     "auth_token",
		OTPExpiration:  10 * time.Minute,
		OTPResendAfter: 60 * time.Second,
		OTPMaxAttempts: 3,
	}
	store := repository.NewStore(pool)
	server := internalhttp.NewServer(cfg, store, mail.LogMailer{}, nil)
	app := httptest.NewServer(server.Router())
	t.Cleanup(app.Close)
	return app, cfg
}

func mustToken(t *testing.T, cfg config.Config, userID, role string) string {
	t.Helper()
	token, err := auth.NewToken(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL, auth.Claims{
		UserID: userID,
		Email:  userID + "@colegio.mx",
		Role:   role,
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return token
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}

func seedAdmin(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO administrators (id, email, password_hash, first_name, last_name_p, created_at)
		VALUES ($1, $1 || '@colegio.mx', 'x', 'Admin', 'Prueba', NOW())
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
}

func TestStudentImportSkipsDuplicates(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	app, cfg := testApp(t, pool)
	adminID := fmt.Sprintf("adm-%d", time.Now().UnixNano())
	seedAdmin(t, pool, adminID)
	adminToken := mustToken(t, cfg, adminID, model.RoleAdministrator)

	suffix := time.Now().UnixNano()
	rows := make([]map[string]interface{}, 0, 12)
	for i := 0; i < 10; i++ {
		rows = append(rows, map[string]interface{}{
			"first_name":  "Alumno",
			"last_name_p": fmt.Sprintf("Num%d", i),
			"grade":       3,
			"group":       "B",
			"matricula":   fmt.Sprintf("M%d-%d", suffix, i),
			"email":       fmt.Sprintf("alumno%d.%d@colegio.mx", i, suffix),
		})
	}
	// Two rows repeat matriculas already in the batch.
	for i := 0; i < 2; i++ {
		rows = append(rows, map[string]interface{}{
			"first_name":  "Duplicado",
			"last_name_p": fmt.Sprintf("Num%d", i),
			"grade":       3,
			"group":       "B",
			"matricula":   fmt.Sprintf("M%d-%d", suffix, i),
			"email":       fmt.Sprintf("dup%d.%d@colegio.mx", i, suffix),
		})
	}

	resp := doReq(t, http.MethodPost, app.URL+"/admin/students/import", adminToken, map[string]interface{}{"students": rows})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Inserted int      `json:"inserted"`
		Skipped  int      `json:"skipped"`
		Reasons  []string `json:"reasons"`
	}
	decodeBody(t, resp, &result)
	if result.Inserted != 10 || result.Skipped != 2 {
		t.Fatalf("inserted=%d skipped=%d, want 10/2 (%v)", result.Inserted, result.Skipped, result.Reasons)
	}
}

func TestEnrollmentDuplicateConflicts(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	app, cfg := testApp(t, pool)
	adminID := fmt.Sprintf("adm-%d", time.Now().UnixNano())
	seedAdmin(t, pool, adminID)
	adminToken := mustToken(t, cfg, adminID, model.RoleAdministrator)
	suffix := time.Now().UnixNano()

	var teacherID struct {
		ID string `json:"id"`
	}
	resp := doReq(t, http.MethodPost, app.URL+"/admin/teachers", adminToken, map[string]interface{}{
		"first_name": "Laura", "last_name_p": "Mora",
		"email": fmt.Sprintf("laura.%d@colegio.mx", suffix),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create teacher: expected 201, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &teacherID)

	var classID struct {
		ID string `json:"id"`
	}
	resp = doReq(t, http.MethodPost, app.URL+"/admin/classes", adminToken, map[string]interface{}{
		"teacher_id": teacherID.ID, "name": "Historia",
		"code": fmt.Sprintf("HIS-%d", suffix),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create class: expected 201, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &classID)

	var studentID struct {
		ID string `json:"id"`
	}
	resp = doReq(t, http.MethodPost, app.URL+"/admin/students", adminToken, map[string]interface{}{
		"first_name": "Pedro", "last_name_p": "Luna", "grade": 2, "group": "A",
		"matricula": fmt.Sprintf("P-%d", suffix),
		"email":     fmt.Sprintf("pedro.%d@colegio.mx", suffix),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create student: expected 201, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &studentID)

	enrollment := map[string]interface{}{"student_id": studentID.ID, "class_id": classID.ID}
	resp = doReq(t, http.MethodPost, app.URL+"/admin/enrollments", adminToken, enrollment)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, app.URL+"/admin/enrollments", adminToken, enrollment)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate enroll: expected 409, got %d", resp.StatusCode)
	}
}

func TestNotificationModerationFlow(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	app, cfg := testApp(t, pool)
	adminID := fmt.Sprintf("adm-%d", time.Now().UnixNano())
	seedAdmin(t, pool, adminID)
	adminToken := mustToken(t, cfg, adminID, model.RoleAdministrator)
	suffix := time.Now().UnixNano()

	// Teacher with a class and one enrolled student.
	var teacher struct {
		ID string `json:"id"`
	}
	resp := doReq(t, http.MethodPost, app.URL+"/admin/teachers", adminToken, map[string]interface{}{
		"first_name": "Mario", "last_name_p": "Reyes",
		"email": fmt.Sprintf("mario.%d@colegio.mx", suffix),
	})
	decodeBody(t, resp, &teacher)
	var class struct {
		ID string `json:"id"`
	}
	resp = doReq(t, http.MethodPost, app.URL+"/admin/classes", adminToken, map[string]interface{}{
		"teacher_id": teacher.ID, "name": "Ciencias", "code": fmt.Sprintf("CIE-%d", suffix),
	})
	decodeBody(t, resp, &class)
	var student struct {
		ID string `json:"id"`
	}
	resp = doReq(t, http.MethodPost, app.URL+"/admin/students", adminToken, map[string]interface{}{
		"first_name": "Sofía", "last_name_p": "Vega", "grade": 4, "group": "C",
		"matricula": fmt.Sprintf("S-%d", suffix),
		"email":     fmt.Sprintf("sofia.%d@colegio.mx", suffix),
	})
	decodeBody(t, resp, &student)
	doReq(t, http.MethodPost, app.URL+"/admin/enrollments", adminToken, map[string]interface{}{
		"student_id": student.ID, "class_id": class.ID,
	})

	teacherToken := mustToken(t, cfg, teacher.ID, model.RoleTeacher)

	// Teacher notification starts pending.
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	resp = doReq(t, http.MethodPost, app.URL+"/teacher/notifications", teacherToken, map[string]interface{}{
		"title": "Tarea", "message": "Entregar mañana",
		"target_mode": "ALUMNOS_ESPECIFICOS", "recipients": []string{student.ID},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create notification: expected 201, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)
	if created.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", created.Status)
	}

	// Teacher cannot target a student outside their classes.
	resp = doReq(t, http.MethodPost, app.URL+"/teacher/notifications", teacherToken, map[string]interface{}{
		"title": "Tarea", "message": "Entregar mañana",
		"target_mode": "ALUMNOS_ESPECIFICOS", "recipients": []string{student.ID, "ajeno"},
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign student: expected 403, got %d", resp.StatusCode)
	}

	// Approve, then a second decision conflicts.
	resp = doReq(t, http.MethodPost, app.URL+"/admin/notifications/"+created.ID+"/moderate", adminToken, map[string]string{"action": "approve"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("moderate: expected 200, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodPost, app.URL+"/admin/notifications/"+created.ID+"/moderate", adminToken, map[string]string{"action": "reject"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double moderate: expected 409, got %d", resp.StatusCode)
	}

	// The enrolled student now sees it.
	studentToken := mustToken(t, cfg, student.ID, model.RoleStudent)
	resp = doReq(t, http.MethodGet, app.URL+"/student/notifications", studentToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("student list: expected 200, got %d", resp.StatusCode)
	}
	var listing struct {
		Notifications []struct {
			ID string `json:"id"`
		} `json:"notifications"`
	}
	decodeBody(t, resp, &listing)
	found := false
	for _, n := range listing.Notifications {
		if n.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("approved notification %s missing from student listing", created.ID)
	}
}
