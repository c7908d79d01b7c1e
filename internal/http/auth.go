package http

import (
	"log"
	"net/http"
	"time"

	"colegio/backend/internal/model"
)

type requestCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

type updateProfileRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastNameP string  `json:"last_name_p" validate:"required"`
	LastNameM string  `json:"last_name_m"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
}

func (s *Server) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	result, err := s.otpEngine.RequestCode(r.Context(), req.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"email":              result.Email,
		"expires_in_minutes": result.ExpiresInMinutes,
	})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	token, profile, err := s.otpEngine.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	http.SetCookie(w, s.authCookie(token, s.cfg.TokenTTL))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  profile,
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	switch claims.Role {
	case model.RoleStudent:
		student, err := s.store.GetStudentByID(r.Context(), claims.UserID)
		if err != nil {
			s.writeAppError(w, r, notFoundOr(err, "user_not_found", "usuario no encontrado"))
			return
		}
		writeJSON(w, http.StatusOK, studentResponseFrom(student))
	case model.RoleTeacher:
		teacher, err := s.store.GetTeacherByID(r.Context(), claims.UserID)
		if err != nil {
			s.writeAppError(w, r, notFoundOr(err, "user_not_found", "usuario no encontrado"))
			return
		}
		writeJSON(w, http.StatusOK, teacherResponseFrom(teacher))
	default:
		writeError(w, http.StatusForbidden, "access_denied")
	}
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req updateProfileRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	var err error
	switch claims.Role {
	case model.RoleStudent:
		err = s.store.UpdateStudentContact(r.Context(), claims.UserID, req.FirstName, req.LastNameP, req.LastNameM, req.Phone, req.Address)
	case model.RoleTeacher:
		err = s.store.UpdateTeacherContact(r.Context(), claims.UserID, req.FirstName, req.LastNameP, req.LastNameM, req.Phone)
	default:
		writeError(w, http.StatusForbidden, "access_denied")
		return
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleLogout denylists the presented token for its remaining lifetime and
// clears the cookie. Without redis the cookie clear is all we can do; the
// token then simply ages out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if s.redis != nil {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			if cookie, err := r.Cookie(s.cfg.CookieName); err == nil {
				token = cookie.Value
			}
		}
		if token != "" && claims.ExpiresAt != nil {
			ttl := time.Until(claims.ExpiresAt.Time)
			if ttl > 0 {
				if err := s.redis.Set(r.Context(), revokedTokenKey(token), "1", ttl).Err(); err != nil {
					log.Printf("token denylist set failed: %v", err)
				}
			}
		}
	}

	cookie := s.authCookie("", 0)
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
