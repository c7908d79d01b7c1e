package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/auth"
	"colegio/backend/internal/config"
	"colegio/backend/internal/crypto"
	"colegio/backend/internal/mail"
	"colegio/backend/internal/model"
	"colegio/backend/internal/notification"
	"colegio/backend/internal/otp"
	"colegio/backend/internal/repository"
)

var pgxNoRows = pgx.ErrNoRows

type Server struct {
	cfg           config.Config
	store         *repository.Store
	notifications *notification.Service
	otpEngine     *otp.Engine
	mailer        mail.Mailer
	redis         *redis.Client
	validate      *validator.Validate

	metrics       *prometheus.Registry
	requestsTotal *prometheus.CounterVec
}

func NewServer(cfg config.Config, store *repository.Store, mailer mail.Mailer, redisClient *redis.Client) *Server {
	engine := otp.NewEngine(store, store, mailer, otp.Config{
		Expiration:  cfg.OTPExpiration,
		ResendAfter: cfg.OTPResendAfter,
		MaxAttempts: cfg.OTPMaxAttempts,
		JWTSecret:   cfg.JWTSecret,
		JWTIssuer:   cfg.JWTIssuer,
		TokenTTL:    cfg.TokenTTL,
	})
	registry := prometheus.NewRegistry()
	return &Server{
		cfg:           cfg,
		store:         store,
		notifications: notification.NewService(store),
		otpEngine:     engine,
		mailer:        mailer,
		redis:         redisClient,
		validate:      validator.New(),
		metrics:       registry,
		requestsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "colegio_http_requests_total",
			Help: "HTTP requests by route pattern and status class.",
		}, []string{"pattern", "class"}),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))

	// OTP login flow for students and teachers.
	r.Post("/auth/otp/request", s.handleRequestCode)
	r.Post("/auth/otp/verify", s.handleVerifyCode)
	r.With(s.authMiddleware, s.requireRole(model.RoleStudent, model.RoleTeacher)).Get("/auth/me", s.handleGetProfile)
	r.With(s.authMiddleware, s.requireRole(model.RoleStudent, model.RoleTeacher)).Patch("/auth/me", s.handleUpdateProfile)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)

	// Password-based administrator auth.
	r.Get("/admin/auth/exists", s.handleAdminsExist)
	r.Post("/admin/auth/register-first", s.handleRegisterFirstAdmin)
	r.Post("/admin/auth/login", s.handleAdminLogin)
	r.With(s.authMiddleware, s.requireRole(model.RoleAdministrator)).Post("/admin/auth/register", s.handleRegisterAdmin)
	r.With(s.authMiddleware, s.requireRole(model.RoleAdministrator)).Post("/admin/auth/change-password", s.handleChangePassword)
	r.With(s.authMiddleware, s.requireRole(model.RoleAdministrator)).Get("/admin/auth/me", s.handleAdminProfile)

	// Teacher notification surface.
	r.Route("/teacher", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(model.RoleTeacher))
		r.Get("/notifications/recipients", s.handleTeacherTargets)
		r.Post("/notifications", s.handleCreateTeacherNotification)
		r.Get("/notifications", s.handleListTeacherNotifications)
		r.Get("/classes", s.handleTeacherClasses)
		r.Get("/classes/{classID}/students", s.handleTeacherClassRoster)
		r.Post("/classes/{classID}/attendance", s.handleSaveAttendance)
		r.Get("/classes/{classID}/attendance", s.handleTeacherClassAttendance)
	})

	// Student surface.
	r.Route("/student", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(model.RoleStudent))
		r.Get("/notifications", s.handleListStudentNotifications)
		r.Get("/classes", s.handleStudentClasses)
	})

	// Administrator surface.
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireRole(model.RoleAdministrator))

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/grades-groups", s.handleGradesGroups)

		r.Get("/students", s.handleListStudents)
		r.Post("/students", s.handleCreateStudent)
		r.Get("/students/{studentID}", s.handleGetStudent)
		r.Put("/students/{studentID}", s.handleUpdateStudent)
		r.Delete("/students/{studentID}", s.handleDeleteStudent)
		r.Post("/students/import", s.handleImportStudents)
		r.Post("/students/promote", s.handlePromoteStudents)
		r.Post("/students/demote", s.handleDemoteStudents)
		r.Delete("/groups/{grade}/{group}", s.handleDeleteGroup)

		r.Get("/teachers", s.handleListTeachers)
		r.Post("/teachers", s.handleCreateTeacher)
		r.Get("/teachers/{teacherID}", s.handleGetTeacher)
		r.Put("/teachers/{teacherID}", s.handleUpdateTeacher)
		r.Delete("/teachers/{teacherID}", s.handleDeleteTeacher)
		r.Post("/teachers/import", s.handleImportTeachers)

		r.Get("/classes", s.handleListClasses)
		r.Post("/classes", s.handleCreateClass)
		r.Get("/classes/{classID}", s.handleGetClass)
		r.Put("/classes/{classID}", s.handleUpdateClass)
		r.Delete("/classes/{classID}", s.handleDeleteClass)
		r.Post("/classes/import", s.handleImportClasses)
		r.Get("/classes/{classID}/enrollments", s.handleListEnrollments)
		r.Post("/enrollments", s.handleCreateEnrollment)
		r.Delete("/enrollments/{enrollmentID}", s.handleDeleteEnrollment)

		r.Get("/notifications", s.handleListNotifications)
		r.Get("/notifications/pending", s.handleListPendingNotifications)
		r.Post("/notifications", s.handleCreateAdminNotification)
		r.Get("/notifications/{notificationID}", s.handleGetNotification)
		r.Post("/notifications/{notificationID}/moderate", s.handleModerateNotification)
		r.Patch("/notifications/{notificationID}", s.handleUpdateNotification)
		r.Delete("/notifications/{notificationID}", s.handleDeleteNotification)
		r.Delete("/notifications", s.handleBulkDeleteNotifications)

		r.Get("/classes/{classID}/attendance", s.handleAdminClassAttendance)
		r.Delete("/classes/{classID}/attendance", s.handleDeleteClassAttendance)
		r.Delete("/attendance/{attendanceID}", s.handleDeleteAttendance)
	})

	return r
}

// Middleware

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// authMiddleware resolves the identity token from the Authorization header
// or, failing that, the auth cookie. Tokens denylisted on logout are
// rejected until they expire on their own.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			if cookie, err := r.Cookie(s.cfg.CookieName); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		if s.redis != nil {
			revoked, err := s.redis.Exists(r.Context(), revokedTokenKey(token)).Result()
			if err != nil {
				log.Printf("redis denylist check failed: %v", err)
			} else if revoked > 0 {
				writeError(w, http.StatusUnauthorized, "token_revoked")
				return
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "not_authenticated")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "access_denied")
		})
	}
}

// requireOwnClass guards teacher-scoped mutations on a class.
func (s *Server) requireOwnClass(ctx context.Context, classID, teacherID string) error {
	owned, err := s.store.ClassOwnedByTeacher(ctx, classID, teacherID)
	if err != nil {
		return err
	}
	if !owned {
		return apperr.New(apperr.Authorization, "not_class_owner", "la clase no pertenece a este maestro")
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		class := "2xx"
		switch {
		case rec.status >= 500:
			class = "5xx"
		case rec.status >= 400:
			class = "4xx"
		case rec.status >= 300:
			class = "3xx"
		}
		s.requestsTotal.WithLabelValues(pattern, class).Inc()
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func revokedTokenKey(token string) string {
	return "revoked_token:" + crypto.HashToken(token)
}

// Responses

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeAppError is the single translator from domain errors to the wire:
// kind maps to status, the stable code and message travel verbatim, and
// anything unclassified is logged and reported as a generic server error.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Printf("internal error: %s %s: %v", r.Method, r.URL.Path, err)
		if s.cfg.Development {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":  "server_error",
				"detail": err.Error(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Authentication:
		status = http.StatusUnauthorized
	case apperr.Authorization:
		status = http.StatusForbidden
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.RateLimit:
		status = http.StatusTooManyRequests
	case apperr.Delivery:
		status = http.StatusInternalServerError
	}

	payload := map[string]interface{}{
		"error":   appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Kind == apperr.RateLimit {
		payload["retry_after"] = appErr.RetryAfter
	}
	if appErr.Kind == apperr.Delivery || appErr.Kind == apperr.Internal {
		log.Printf("%s: %s %s: %v", appErr.Code, r.Method, r.URL.Path, appErr.Err)
	}
	writeJSON(w, status, payload)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.Validation, "invalid_json", "JSON malformado en la petición", err)
	}
	return nil
}

func (s *Server) bind(r *http.Request, dst interface{}) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		return apperr.Wrap(apperr.Validation, "validation_error", "datos de entrada inválidos", err)
	}
	return nil
}

// notFoundOr maps a pgx no-rows error to a domain not-found, leaving other
// errors (infrastructure faults) untouched.
func notFoundOr(err error, code, message string) error {
	if errors.Is(err, pgxNoRows) {
		return apperr.Wrap(apperr.NotFound, code, message, err)
	}
	return err
}

// AuthCookie builds the session cookie for browser clients.
func (s *Server) authCookie(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCooky,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	}
}
