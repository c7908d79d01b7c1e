package notification

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/model"
)

type fakeStore struct {
	ownedStudents int
	ownedClasses  int
	gradeMatches  int

	inserted []model.Notification
	byID     map[string]model.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[string]model.Notification{}}
}

func (f *fakeStore) CountOwnedStudents(_ context.Context, _ string, _ []string) (int, error) {
	return f.ownedStudents, nil
}

func (f *fakeStore) CountOwnedClasses(_ context.Context, _ string, _ []string) (int, error) {
	return f.ownedClasses, nil
}

func (f *fakeStore) CountStudentsInGradeGroup(_ context.Context, _ string, _ int, _ *string) (int, error) {
	return f.gradeMatches, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, n model.Notification) (string, error) {
	n.ID = "n1"
	f.inserted = append(f.inserted, n)
	f.byID[n.ID] = n
	return n.ID, nil
}

func (f *fakeStore) GetNotification(_ context.Context, id string) (model.Notification, error) {
	n, ok := f.byID[id]
	if !ok {
		return model.Notification{}, pgx.ErrNoRows
	}
	return n, nil
}

func (f *fakeStore) SetStatusIfPending(_ context.Context, id, status, adminID string, at time.Time) (int64, error) {
	n, ok := f.byID[id]
	if !ok || n.Status != model.StatusPending {
		return 0, nil
	}
	n.Status = status
	n.ApprovedByID = &adminID
	n.ApprovedAt = &at
	f.byID[id] = n
	return 1, nil
}

func newTestService(store *fakeStore) *Service {
	svc := NewService(store)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateTeacherNotificationStartsPending(t *testing.T) {
	store := newFakeStore()
	store.ownedStudents = 2
	svc := newTestService(store)

	target, _ := ParseTarget(ModeSpecificStudents, []string{"s1", "s2"}, nil, nil)
	n, err := svc.Create(context.Background(), model.RoleTeacher, "t1", "Aviso", "Mensaje", target)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", n.Status)
	}
	if n.ApprovedByID != nil {
		t.Fatal("teacher notification must not be pre-approved")
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(store.inserted))
	}
}

func TestCreateAdminNotificationAutoApproved(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	target, _ := ParseTarget(ModeAllStudents, nil, nil, nil)
	n, err := svc.Create(context.Background(), model.RoleAdministrator, "a1", "Aviso", "Mensaje", target)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Status != model.StatusApproved {
		t.Fatalf("status = %s, want approved", n.Status)
	}
	if n.ApprovedByID == nil || *n.ApprovedByID != "a1" {
		t.Fatalf("approver = %v, want a1", n.ApprovedByID)
	}
	if n.ApprovedAt == nil {
		t.Fatal("approved_at must be set")
	}
}

func TestCreateUnauthorizedTargetPersistsNothing(t *testing.T) {
	store := newFakeStore()
	store.ownedStudents = 1 // request names 2
	svc := newTestService(store)

	target, _ := ParseTarget(ModeSpecificStudents, []string{"s1", "s9"}, nil, nil)
	_, err := svc.Create(context.Background(), model.RoleTeacher, "t1", "Aviso", "Mensaje", target)
	if !apperr.IsKind(err, apperr.Authorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("inserted %d rows, want 0", len(store.inserted))
	}
}

func TestCreateTeacherCannotTargetAllStudents(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	target, _ := ParseTarget(ModeAllStudents, nil, nil, nil)
	_, err := svc.Create(context.Background(), model.RoleTeacher, "t1", "Aviso", "Mensaje", target)
	if !apperr.IsKind(err, apperr.Authorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestCreateGradeTargetWithNoStudentsFails(t *testing.T) {
	store := newFakeStore()
	store.gradeMatches = 0
	svc := newTestService(store)

	grade := 3
	target, _ := ParseTarget(ModeGradeWide, nil, &grade, nil)
	_, err := svc.Create(context.Background(), model.RoleTeacher, "t1", "Aviso", "Mensaje", target)
	if !apperr.IsKind(err, apperr.Authorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestCreateRequiresTitleAndMessage(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	target, _ := ParseTarget(ModeAllStudents, nil, nil, nil)
	_, err := svc.Create(context.Background(), model.RoleAdministrator, "a1", "", "Mensaje", target)
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestModerateApproveThenRejectConflicts(t *testing.T) {
	store := newFakeStore()
	store.ownedStudents = 1
	svc := newTestService(store)

	target, _ := ParseTarget(ModeSpecificStudents, []string{"s1"}, nil, nil)
	n, err := svc.Create(context.Background(), model.RoleTeacher, "t1", "Aviso", "Mensaje", target)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	status, err := svc.Moderate(context.Background(), n.ID, "a1", ActionApprove)
	if err != nil {
		t.Fatalf("first Moderate: %v", err)
	}
	if status != model.StatusApproved {
		t.Fatalf("status = %s, want approved", status)
	}

	_, err = svc.Moderate(context.Background(), n.ID, "a2", ActionReject)
	if !apperr.IsKind(err, apperr.Conflict) {
		t.Fatalf("second decision should conflict, got %v", err)
	}
	if store.byID[n.ID].Status != model.StatusApproved {
		t.Fatal("first decision must stand")
	}
}

func TestModerateMissingNotification(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.Moderate(context.Background(), "missing", "a1", ActionApprove)
	if !apperr.IsKind(err, apperr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestModerateInvalidAction(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.Moderate(context.Background(), "n1", "a1", "archive")
	if !apperr.IsKind(err, apperr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
