package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/model"
	"colegio/backend/internal/notification"
)

type createNotificationRequest struct {
	Title      string   `json:"title" validate:"required"`
	Message    string   `json:"message" validate:"required"`
	TargetMode string   `json:"target_mode" validate:"required"`
	Recipients []string `json:"recipients"`
	Grade      *int     `json:"grade"`
	Group      *string  `json:"group"`
}

type moderateRequest struct {
	Action string `json:"action" validate:"required"`
}

type updateNotificationRequest struct {
	Title   *string `json:"title"`
	Message *string `json:"message"`
}

type notificationResponse struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	TargetMode    string     `json:"target_mode"`
	Recipients    []string   `json:"recipients,omitempty"`
	Grade         *int       `json:"grade,omitempty"`
	Group         *string    `json:"group,omitempty"`
	Status        string     `json:"status"`
	CreatedByID   string     `json:"created_by_id"`
	CreatedByRole string     `json:"created_by_role"`
	ApprovedByID  *string    `json:"approved_by_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
}

func notificationResponseFrom(n model.Notification) notificationResponse {
	return notificationResponse{
		ID:            n.ID,
		Title:         n.Title,
		Message:       n.Message,
		TargetMode:    n.TargetMode,
		Recipients:    n.TargetPayload,
		Grade:         n.TargetGrade,
		Group:         n.TargetGroup,
		Status:        n.Status,
		CreatedByID:   n.CreatedByID,
		CreatedByRole: n.CreatedByRole,
		ApprovedByID:  n.ApprovedByID,
		CreatedAt:     n.CreatedAt,
		ApprovedAt:    n.ApprovedAt,
	}
}

// studentNotificationResponse hides the raw targeting data from students.
type studentNotificationResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	TargetMode string    `json:"target_mode"`
	CreatedAt  time.Time `json:"created_at"`
}

// Teacher handlers

func (s *Server) handleTeacherTargets(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	classes, err := s.store.ListClassesByTeacher(r.Context(), claims.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	students, err := s.store.ListStudentsOfTeacher(r.Context(), claims.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	type classEntry struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Code         string `json:"code"`
		StudentCount int    `json:"student_count"`
	}
	classEntries := make([]classEntry, 0, len(classes))
	for _, summary := range classes {
		classEntries = append(classEntries, classEntry{
			ID:           summary.Class.ID,
			Name:         summary.Class.Name,
			Code:         summary.Class.Code,
			StudentCount: summary.StudentCount,
		})
	}
	studentEntries := make([]studentResponse, 0, len(students))
	for _, st := range students {
		studentEntries = append(studentEntries, studentResponseFrom(st))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"classes":  classEntries,
		"students": studentEntries,
	})
}

func (s *Server) handleCreateTeacherNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	s.createNotification(w, r, model.RoleTeacher, claims.UserID)
}

func (s *Server) handleCreateAdminNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	s.createNotification(w, r, model.RoleAdministrator, claims.UserID)
}

func (s *Server) createNotification(w http.ResponseWriter, r *http.Request, creatorRole, creatorID string) {
	var req createNotificationRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	target, err := notification.ParseTarget(req.TargetMode, req.Recipients, req.Grade, req.Group)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	created, err := s.notifications.Create(r.Context(), creatorRole, creatorID, req.Title, req.Message, target)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, notificationResponseFrom(created))
}

func (s *Server) handleListTeacherNotifications(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	status, err := statusFilter(r.URL.Query().Get("status"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	limit := limitParam(r, 20)

	notifications, err := s.store.ListNotificationsByCreator(r.Context(), claims.UserID, model.RoleTeacher, status, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationResponseFrom(n))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": out})
}

// Administrator handlers

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	status, err := statusFilter(r.URL.Query().Get("status"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var mode *string
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode = &raw
	}
	limit := limitParam(r, 20)
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	notifications, total, err := s.store.ListNotifications(r.Context(), status, mode, limit, offset)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationResponseFrom(n))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": out,
		"total":         total,
	})
}

func (s *Server) handleListPendingNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.store.ListPendingNotifications(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationResponseFrom(n))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": out})
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.GetNotification(r.Context(), chi.URLParam(r, "notificationID"))
	if err != nil {
		s.writeAppError(w, r, notFoundOr(err, "notification_not_found", "notificación no encontrada"))
		return
	}
	writeJSON(w, http.StatusOK, notificationResponseFrom(n))
}

func (s *Server) handleModerateNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req moderateRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	status, err := s.notifications.Moderate(r.Context(), chi.URLParam(r, "notificationID"), claims.UserID, req.Action)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":           chi.URLParam(r, "notificationID"),
		"status":       status,
		"moderated_by": claims.UserID,
	})
}

func (s *Server) handleUpdateNotification(w http.ResponseWriter, r *http.Request) {
	var req updateNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if req.Title == nil && req.Message == nil {
		s.writeAppError(w, r, apperr.New(apperr.Validation, "missing_fields", "nada que actualizar"))
		return
	}

	// Only approved records are editable; pending ones go through moderation
	// and rejected ones stay as authored.
	n, err := s.store.GetNotification(r.Context(), chi.URLParam(r, "notificationID"))
	if err != nil {
		s.writeAppError(w, r, notFoundOr(err, "notification_not_found", "notificación no encontrada"))
		return
	}
	if n.Status != model.StatusApproved {
		s.writeAppError(w, r, apperr.New(apperr.Conflict, "not_editable", "solo se pueden editar notificaciones aprobadas"))
		return
	}

	affected, err := s.store.UpdateNotificationContent(r.Context(), n.ID, req.Title, req.Message)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "notification_not_found", "notificación no encontrada"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	affected, err := s.store.DeleteNotification(r.Context(), chi.URLParam(r, "notificationID"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "notification_not_found", "notificación no encontrada"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleBulkDeleteNotifications removes rejected records or everything older
// than a day threshold (default 14), depending on the mode query parameter.
func (s *Server) handleBulkDeleteNotifications(w http.ResponseWriter, r *http.Request) {
	var deleted int64
	var err error

	switch mode := r.URL.Query().Get("mode"); mode {
	case "rejected":
		deleted, err = s.store.DeleteRejectedNotifications(r.Context())
	case "older-than", "":
		days := 14
		if raw := r.URL.Query().Get("days"); raw != "" {
			parsed, parseErr := strconv.Atoi(raw)
			if parseErr != nil || parsed <= 0 {
				s.writeAppError(w, r, apperr.New(apperr.Validation, "invalid_days", "days debe ser un entero positivo"))
				return
			}
			days = parsed
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		deleted, err = s.store.DeleteNotificationsOlderThan(r.Context(), cutoff)
	default:
		s.writeAppError(w, r, apperr.New(apperr.Validation, "invalid_mode", "mode debe ser rejected u older-than"))
		return
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// Student handler

// handleListStudentNotifications fetches the student's grade, group and
// class memberships once, then filters approved candidates through the
// pure inclusion predicate.
func (s *Server) handleListStudentNotifications(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	limit := limitParam(r, 20)

	student, err := s.store.GetStudentByID(r.Context(), claims.UserID)
	if err != nil {
		s.writeAppError(w, r, notFoundOr(err, "student_not_found", "alumno no encontrado"))
		return
	}
	classes, err := s.store.ListClassesByStudent(r.Context(), claims.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	view := notification.StudentView{
		ID:    student.ID,
		Grade: student.Grade,
		Group: student.Group,
	}
	for _, cl := range classes {
		view.Classes = append(view.Classes, notification.EnrolledClass{ID: cl.ID, TeacherID: cl.TeacherID})
	}

	candidates, err := s.store.ListApprovedNotifications(r.Context(), limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	out := make([]studentNotificationResponse, 0, len(candidates))
	for _, n := range candidates {
		if !notification.Includes(n, view) {
			continue
		}
		out = append(out, studentNotificationResponse{
			ID:         n.ID,
			Title:      n.Title,
			Message:    n.Message,
			TargetMode: n.TargetMode,
			CreatedAt:  n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": out})
}

// Helpers

func statusFilter(raw string) (*string, error) {
	if raw == "" {
		return nil, nil
	}
	switch raw {
	case model.StatusPending, model.StatusApproved, model.StatusRejected:
		return &raw, nil
	default:
		return nil, apperr.New(apperr.Validation, "invalid_status", "status debe ser pending, approved o rejected")
	}
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if parsed < 1 {
		return 1
	}
	if parsed > 100 {
		return 100
	}
	return parsed
}
