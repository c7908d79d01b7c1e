package notification

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/model"
)

// Moderation actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Store is the persistence surface the notification service depends on.
type Store interface {
	OwnershipStore
	InsertNotification(ctx context.Context, n model.Notification) (string, error)
	GetNotification(ctx context.Context, notificationID string) (model.Notification, error)
	SetStatusIfPending(ctx context.Context, notificationID, status, adminID string, at time.Time) (int64, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create authorizes the target against the creator and persists the record.
// Teacher-authored notifications start pending; administrator-authored ones
// are born approved with the creator as approver. An authorization failure
// persists nothing.
func (s *Service) Create(ctx context.Context, creatorRole, creatorID, title, message string, target Target) (model.Notification, error) {
	if title == "" || message == "" {
		return model.Notification{}, apperr.New(apperr.Validation, "missing_fields", "título y mensaje son requeridos")
	}
	if err := AuthorizeTarget(ctx, s.store, creatorRole, creatorID, target); err != nil {
		return model.Notification{}, err
	}

	now := s.now().UTC()
	n := model.Notification{
		Title:         title,
		Message:       message,
		TargetMode:    target.Mode,
		Status:        model.StatusPending,
		CreatedByID:   creatorID,
		CreatedByRole: creatorRole,
		CreatedAt:     now,
	}
	switch target.Mode {
	case ModeSpecificStudents:
		n.TargetPayload = target.StudentIDs
	case ModeClassWide:
		n.TargetPayload = target.ClassIDs
	case ModeGradeWide:
		grade := target.Grade
		n.TargetGrade = &grade
	case ModeGroupWide:
		grade, group := target.Grade, target.Group
		n.TargetGrade = &grade
		n.TargetGroup = &group
	}
	if creatorRole == model.RoleAdministrator {
		n.Status = model.StatusApproved
		n.ApprovedByID = &creatorID
		n.ApprovedAt = &now
	}

	id, err := s.store.InsertNotification(ctx, n)
	if err != nil {
		return model.Notification{}, err
	}
	n.ID = id
	return n, nil
}

// Moderate applies an admin decision to a pending notification. Approved and
// rejected are absorbing states; the conditional update loses against any
// earlier decision and the loss surfaces as a conflict, never a silent no-op.
func (s *Service) Moderate(ctx context.Context, notificationID, adminID, action string) (string, error) {
	var status string
	switch action {
	case ActionApprove:
		status = model.StatusApproved
	case ActionReject:
		status = model.StatusRejected
	default:
		return "", apperr.New(apperr.Validation, "invalid_action", "la acción debe ser approve o reject")
	}

	affected, err := s.store.SetStatusIfPending(ctx, notificationID, status, adminID, s.now().UTC())
	if err != nil {
		return "", err
	}
	if affected == 0 {
		if _, err := s.store.GetNotification(ctx, notificationID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return "", apperr.Wrap(apperr.NotFound, "notification_not_found", "notificación no encontrada", err)
			}
			return "", err
		}
		return "", apperr.New(apperr.Conflict, "already_moderated", "la notificación ya fue moderada")
	}
	return status, nil
}
