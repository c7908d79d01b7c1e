package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/model"
	"colegio/backend/internal/repository"
)

const attendanceDateLayout = "2006-01-02"

type attendanceEntryRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

type saveAttendanceRequest struct {
	Date    string                   `json:"date" validate:"required"`
	Entries []attendanceEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

type attendanceResponse struct {
	ID           string `json:"id"`
	StudentID    string `json:"student_id"`
	ClassID      string `json:"class_id"`
	Date         string `json:"date"`
	Status       string `json:"status"`
	RegisteredBy string `json:"registered_by"`
}

func attendanceResponseFrom(att model.Attendance) attendanceResponse {
	return attendanceResponse{
		ID:           att.ID,
		StudentID:    att.StudentID,
		ClassID:      att.ClassID,
		Date:         att.Date.Format(attendanceDateLayout),
		Status:       att.Status,
		RegisteredBy: att.RegisteredBy,
	}
}

func validAttendanceStatus(status string) bool {
	switch status {
	case model.AttendancePresent, model.AttendanceAbsent, model.AttendanceLate, model.AttendanceJustified:
		return true
	}
	return false
}

// handleSaveAttendance replaces the class's roll call for the given date.
func (s *Server) handleSaveAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	classID := chi.URLParam(r, "classID")

	if err := s.requireOwnClass(r.Context(), classID, claims.UserID); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	var req saveAttendanceRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	date, err := time.Parse(attendanceDateLayout, req.Date)
	if err != nil {
		s.writeAppError(w, r, apperr.Wrap(apperr.Validation, "invalid_date", "date debe tener formato AAAA-MM-DD", err))
		return
	}

	entries := make([]repository.AttendanceEntry, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if !validAttendanceStatus(entry.Status) {
			s.writeAppError(w, r, apperr.New(apperr.Validation, "invalid_status", "status debe ser present, absent, late o justified"))
			return
		}
		entries = append(entries, repository.AttendanceEntry{
			StudentID: entry.StudentID,
			Status:    entry.Status,
		})
	}

	if err := s.store.SaveAttendanceBatch(r.Context(), classID, date, entries, claims.UserID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "saved",
		"count":  len(entries),
	})
}

func (s *Server) handleTeacherClassAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	classID := chi.URLParam(r, "classID")

	if err := s.requireOwnClass(r.Context(), classID, claims.UserID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.listClassAttendance(w, r, classID)
}

func (s *Server) handleAdminClassAttendance(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if _, err := s.store.GetClassByID(r.Context(), classID); err != nil {
		s.writeAppError(w, r, notFoundOr(err, "class_not_found", "clase no encontrada"))
		return
	}
	s.listClassAttendance(w, r, classID)
}

func (s *Server) listClassAttendance(w http.ResponseWriter, r *http.Request, classID string) {
	from, err := dateParam(r, "from")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	to, err := dateParam(r, "to")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	records, err := s.store.ListAttendanceByClass(r.Context(), classID, from, to)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]attendanceResponse, 0, len(records))
	for _, att := range records {
		out = append(out, attendanceResponseFrom(att))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attendance": out})
}

func (s *Server) handleDeleteAttendance(w http.ResponseWriter, r *http.Request) {
	affected, err := s.store.DeleteAttendance(r.Context(), chi.URLParam(r, "attendanceID"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "attendance_not_found", "registro de asistencia no encontrado"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleDeleteClassAttendance(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.DeleteAttendanceByClass(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func dateParam(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(attendanceDateLayout, raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "invalid_date", key+" debe tener formato AAAA-MM-DD", err)
	}
	return &parsed, nil
}
