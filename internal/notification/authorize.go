package notification

import (
	"context"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/model"
)

// OwnershipStore answers the membership questions behind creation-time
// authorization.
type OwnershipStore interface {
	CountOwnedStudents(ctx context.Context, teacherID string, studentIDs []string) (int, error)
	CountOwnedClasses(ctx context.Context, teacherID string, classIDs []string) (int, error)
	CountStudentsInGradeGroup(ctx context.Context, teacherID string, grade int, group *string) (int, error)
}

// AuthorizeTarget decides whether the creator may address the target.
// Teachers are limited to their own students and classes and the check fails
// closed: one unauthorized id rejects the whole request. Administrators may
// use any mode and skip ownership checks.
func AuthorizeTarget(ctx context.Context, store OwnershipStore, creatorRole, creatorID string, target Target) error {
	switch creatorRole {
	case model.RoleAdministrator:
		return nil
	case model.RoleTeacher:
	default:
		return apperr.New(apperr.Authorization, "access_denied", "solo maestros y administradores pueden crear notificaciones")
	}

	switch target.Mode {
	case ModeSpecificStudents:
		owned, err := store.CountOwnedStudents(ctx, creatorID, target.StudentIDs)
		if err != nil {
			return err
		}
		if owned != len(target.StudentIDs) {
			return apperr.New(apperr.Authorization, "invalid_students", "solo puedes notificar a alumnos de tus clases")
		}
		return nil

	case ModeClassWide:
		owned, err := store.CountOwnedClasses(ctx, creatorID, target.ClassIDs)
		if err != nil {
			return err
		}
		if owned != len(target.ClassIDs) {
			return apperr.New(apperr.Authorization, "invalid_classes", "solo puedes notificar a tus clases")
		}
		return nil

	case ModeAllOwnedStudents:
		// The audience derives from the teacher's own ownership facts.
		return nil

	case ModeGradeWide:
		matches, err := store.CountStudentsInGradeGroup(ctx, creatorID, target.Grade, nil)
		if err != nil {
			return err
		}
		if matches == 0 {
			return apperr.New(apperr.Authorization, "no_matching_students", "no tienes alumnos en ese grado")
		}
		return nil

	case ModeGroupWide:
		group := target.Group
		matches, err := store.CountStudentsInGradeGroup(ctx, creatorID, target.Grade, &group)
		if err != nil {
			return err
		}
		if matches == 0 {
			return apperr.New(apperr.Authorization, "no_matching_students", "no tienes alumnos en ese grado y grupo")
		}
		return nil

	case ModeAllStudents:
		return apperr.New(apperr.Authorization, "admin_only_target", "solo administradores pueden notificar a todos los alumnos")

	default:
		return apperr.New(apperr.Validation, "invalid_recipient_type", "tipo de destinatario inválido")
	}
}
