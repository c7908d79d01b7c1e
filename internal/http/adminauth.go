package http

import (
	"errors"
	"net/http"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/auth"
	"colegio/backend/internal/crypto"
	"colegio/backend/internal/model"
)

type registerAdminRequest struct {
	Email           string  `json:"email" validate:"required,email"`
	Password        string  `json:"password" validate:"required,min=8"`
	ConfirmPassword string  `json:"confirm_password" validate:"required"`
	FirstName       string  `json:"first_name" validate:"required"`
	LastNameP       string  `json:"last_name_p" validate:"required"`
	LastNameM       string  `json:"last_name_m"`
	Phone           *string `json:"phone"`
}

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type adminResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastNameP string  `json:"last_name_p"`
	LastNameM string  `json:"last_name_m"`
	Phone     *string `json:"phone,omitempty"`
}

func adminResponseFrom(admin model.Administrator) adminResponse {
	return adminResponse{
		ID:        admin.ID,
		Email:     admin.Email,
		FirstName: admin.FirstName,
		LastNameP: admin.LastNameP,
		LastNameM: admin.LastNameM,
		Phone:     admin.Phone,
	}
}

func (s *Server) handleAdminsExist(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountAdmins(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": count > 0})
}

// handleRegisterFirstAdmin bootstraps the very first administrator account;
// it refuses once any administrator exists.
func (s *Server) handleRegisterFirstAdmin(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountAdmins(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if count > 0 {
		s.writeAppError(w, r, apperr.New(apperr.Conflict, "admins_exist", "ya existe un administrador registrado"))
		return
	}
	s.registerAdmin(w, r)
}

func (s *Server) handleRegisterAdmin(w http.ResponseWriter, r *http.Request) {
	s.registerAdmin(w, r)
}

func (s *Server) registerAdmin(w http.ResponseWriter, r *http.Request) {
	var req registerAdminRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if req.Password != req.ConfirmPassword {
		s.writeAppError(w, r, apperr.New(apperr.Validation, "password_mismatch", "las contraseñas no coinciden"))
		return
	}

	taken, err := s.store.AdminEmailExists(r.Context(), req.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if taken {
		s.writeAppError(w, r, apperr.New(apperr.Conflict, "email_taken", "el correo ya está registrado"))
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	id, err := s.store.CreateAdmin(r.Context(), model.Administrator{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastNameP:    req.LastNameP,
		LastNameM:    req.LastNameM,
		Phone:        req.Phone,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	admin, err := s.store.GetAdminByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgxNoRows) {
			// Same answer for unknown email and bad password.
			s.writeAppError(w, r, apperr.New(apperr.Authentication, "invalid_credentials", "credenciales inválidas"))
			return
		}
		s.writeAppError(w, r, err)
		return
	}
	if err := crypto.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		s.writeAppError(w, r, apperr.New(apperr.Authentication, "invalid_credentials", "credenciales inválidas"))
		return
	}

	token, err := auth.NewToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, auth.Claims{
		UserID: admin.ID,
		Email:  admin.Email,
		Role:   model.RoleAdministrator,
		Name:   admin.FirstName,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	http.SetCookie(w, s.authCookie(token, s.cfg.TokenTTL))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  adminResponseFrom(admin),
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req changePasswordRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	admin, err := s.store.GetAdminByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeAppError(w, r, notFoundOr(err, "user_not_found", "usuario no encontrado"))
		return
	}
	if err := crypto.CheckPassword(admin.PasswordHash, req.CurrentPassword); err != nil {
		s.writeAppError(w, r, apperr.New(apperr.Authentication, "invalid_credentials", "la contraseña actual no es correcta"))
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.store.UpdateAdminPassword(r.Context(), claims.UserID, hash); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (s *Server) handleAdminProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	admin, err := s.store.GetAdminByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeAppError(w, r, notFoundOr(err, "user_not_found", "usuario no encontrado"))
		return
	}
	writeJSON(w, http.StatusOK, adminResponseFrom(admin))
}
