package model

import "time"

// Roles carried by identity tokens. Each role lives in its own table.
const (
	RoleStudent       = "student"
	RoleTeacher       = "teacher"
	RoleAdministrator = "administrator"
)

// Notification moderation statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Student struct {
	ID        string
	FirstName string
	LastNameP string
	LastNameM string
	Grade     int
	Group     string
	Matricula string
	Email     string
	CURP      *string
	Phone     *string
	Address   *string
	BirthDate *time.Time
	CreatedAt time.Time
}

type Teacher struct {
	ID        string
	FirstName string
	LastNameP string
	LastNameM string
	Email     string
	Phone     *string
	CreatedAt time.Time
}

type Administrator struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastNameP    string
	LastNameM    string
	Phone        *string
	CreatedAt    time.Time
}

type Class struct {
	ID        string
	TeacherID string
	Name      string
	Code      string
	CreatedAt time.Time
}

// Enrollment is a pure membership fact linking a student to a class.
type Enrollment struct {
	ID        string
	StudentID string
	ClassID   string
	CreatedAt time.Time
}

type Notification struct {
	ID            string
	Title         string
	Message       string
	TargetMode    string
	TargetPayload []string // student or class ids, JSON array in storage
	TargetGrade   *int
	TargetGroup   *string
	Status        string
	CreatedByID   string
	CreatedByRole string
	ApprovedByID  *string
	CreatedAt     time.Time
	ApprovedAt    *time.Time
}

// OTPCode is a one-time login code keyed by email. At most one unused,
// unexpired code per email is relied upon; issuing a new one marks the
// rest used.
type OTPCode struct {
	ID        string
	Email     string
	Code      string
	UserRole  string
	ExpiresAt time.Time
	Used      bool
	Attempts  int
	CreatedAt time.Time
}

type Attendance struct {
	ID           string
	StudentID    string
	ClassID      string
	Date         time.Time
	Status       string
	RegisteredBy string
	CreatedAt    time.Time
}

// Attendance statuses.
const (
	AttendancePresent   = "present"
	AttendanceAbsent    = "absent"
	AttendanceLate      = "late"
	AttendanceJustified = "justified"
)

func (s Student) FullName() string {
	name := s.FirstName + " " + s.LastNameP
	if s.LastNameM != "" {
		name += " " + s.LastNameM
	}
	return name
}

func (t Teacher) FullName() string {
	name := t.FirstName + " " + t.LastNameP
	if t.LastNameM != "" {
		name += " " + t.LastNameM
	}
	return name
}
