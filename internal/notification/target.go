package notification

import (
	"colegio/backend/internal/apperr"
	"colegio/backend/internal/model"
)

// Target modes. The tokens are part of the stored data contract and are
// matched case-sensitively.
const (
	ModeSpecificStudents = "ALUMNOS_ESPECIFICOS"
	ModeClassWide        = "ALUMNOS_CLASE"
	ModeAllOwnedStudents = "TODOS_MIS_ALUMNOS"
	ModeGradeWide        = "ALUMNOS_GRADO"
	ModeGroupWide        = "ALUMNOS_GRUPO"
	ModeAllStudents      = "TODOS_ALUMNOS"
)

// Target is the parsed, validated audience description of a notification.
// Exactly one shape is populated, selected by Mode: student ids, class ids,
// a grade, a grade+group pair, or nothing for the "all" variants.
type Target struct {
	Mode       string
	StudentIDs []string
	ClassIDs   []string
	Grade      int
	Group      string
}

// ParseTarget validates a requested mode and payload into a Target. Every
// failure is a validation error; nothing is ever downgraded to an
// empty-audience target.
func ParseTarget(mode string, recipients []string, grade *int, group *string) (Target, error) {
	switch mode {
	case ModeSpecificStudents:
		if len(recipients) == 0 {
			return Target{}, apperr.New(apperr.Validation, "no_recipients", "debe especificar al menos un alumno")
		}
		return Target{Mode: mode, StudentIDs: dedupe(recipients)}, nil

	case ModeClassWide:
		if len(recipients) == 0 {
			return Target{}, apperr.New(apperr.Validation, "no_recipients", "debe especificar al menos una clase")
		}
		return Target{Mode: mode, ClassIDs: dedupe(recipients)}, nil

	case ModeAllOwnedStudents, ModeAllStudents:
		if len(recipients) > 0 {
			return Target{}, apperr.New(apperr.Validation, "unexpected_recipients", "este tipo de destinatario no admite lista de destinatarios")
		}
		return Target{Mode: mode}, nil

	case ModeGradeWide:
		if grade == nil || *grade <= 0 {
			return Target{}, apperr.New(apperr.Validation, "missing_grade", "se requiere un grado")
		}
		return Target{Mode: mode, Grade: *grade}, nil

	case ModeGroupWide:
		if grade == nil || *grade <= 0 {
			return Target{}, apperr.New(apperr.Validation, "missing_grade", "se requiere un grado")
		}
		if group == nil || *group == "" {
			return Target{}, apperr.New(apperr.Validation, "missing_group", "se requiere un grupo")
		}
		return Target{Mode: mode, Grade: *grade, Group: *group}, nil

	default:
		return Target{}, apperr.New(apperr.Validation, "invalid_recipient_type", "tipo de destinatario inválido")
	}
}

// EnrolledClass is one class a student belongs to, with its owning teacher.
type EnrolledClass struct {
	ID        string
	TeacherID string
}

// StudentView is everything Includes needs about a student. It is fetched
// once per listing request so the predicate runs without further queries.
type StudentView struct {
	ID      string
	Grade   int
	Group   string
	Classes []EnrolledClass
}

// Includes reports whether the student is in the notification's audience.
// Pure and side-effect free; unknown or unsupported modes exclude the
// record rather than failing the listing.
func Includes(n model.Notification, student StudentView) bool {
	switch n.TargetMode {
	case ModeAllStudents:
		return true

	case ModeGradeWide:
		return n.TargetGrade != nil && *n.TargetGrade == student.Grade

	case ModeGroupWide:
		return n.TargetGrade != nil && *n.TargetGrade == student.Grade &&
			n.TargetGroup != nil && *n.TargetGroup == student.Group

	case ModeSpecificStudents:
		for _, id := range n.TargetPayload {
			if id == student.ID {
				return true
			}
		}
		return false

	case ModeClassWide:
		for _, classID := range n.TargetPayload {
			for _, enrolled := range student.Classes {
				if enrolled.ID == classID {
					return true
				}
			}
		}
		return false

	case ModeAllOwnedStudents:
		for _, enrolled := range student.Classes {
			if enrolled.TeacherID == n.CreatedByID {
				return true
			}
		}
		return false

	default:
		return false
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
