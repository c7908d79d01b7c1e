package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"colegio/backend/internal/apperr"
	"colegio/backend/internal/mail"
	"colegio/backend/internal/model"
)

const birthDateLayout = "2006-01-02"

func logMailFailure(to string, err error) {
	log.Printf("welcome mail to %s failed: %v", to, err)
}

// Requests

type studentRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastNameP string  `json:"last_name_p" validate:"required"`
	LastNameM string  `json:"last_name_m"`
	Grade     int     `json:"grade" validate:"required,min=1,max=6"`
	Group     string  `json:"group" validate:"required"`
	Matricula string  `json:"matricula" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	CURP      *string `json:"curp"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	BirthDate *string `json:"birth_date"`
}

type teacherRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastNameP string  `json:"last_name_p" validate:"required"`
	LastNameM string  `json:"last_name_m"`
	Email     string  `json:"email" validate:"required,email"`
	Phone     *string `json:"phone"`
}

type classRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Code      string `json:"code" validate:"required"`
}

type enrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

type shiftGradesRequest struct {
	Grade *int    `json:"grade"`
	Group *string `json:"group"`
	All   bool    `json:"all"`
}

// Responses

type studentResponse struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name"`
	LastNameP string  `json:"last_name_p"`
	LastNameM string  `json:"last_name_m"`
	Grade     int     `json:"grade"`
	Group     string  `json:"group"`
	Matricula string  `json:"matricula"`
	Email     string  `json:"email"`
	CURP      *string `json:"curp,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	BirthDate *string `json:"birth_date,omitempty"`
}

func studentResponseFrom(st model.Student) studentResponse {
	resp := studentResponse{
		ID:        st.ID,
		FirstName: st.FirstName,
		LastNameP: st.LastNameP,
		LastNameM: st.LastNameM,
		Grade:     st.Grade,
		Group:     st.Group,
		Matricula: st.Matricula,
		Email:     st.Email,
		CURP:      st.CURP,
		Phone:     st.Phone,
		Address:   st.Address,
	}
	if st.BirthDate != nil {
		formatted := st.BirthDate.Format(birthDateLayout)
		resp.BirthDate = &formatted
	}
	return resp
}

type teacherResponse struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name"`
	LastNameP string  `json:"last_name_p"`
	LastNameM string  `json:"last_name_m"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
}

func teacherResponseFrom(tc model.Teacher) teacherResponse {
	return teacherResponse{
		ID:        tc.ID,
		FirstName: tc.FirstName,
		LastNameP: tc.LastNameP,
		LastNameM: tc.LastNameM,
		Email:     tc.Email,
		Phone:     tc.Phone,
	}
}

type classResponse struct {
	ID        string `json:"id"`
	TeacherID string `json:"teacher_id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
}

func classResponseFrom(cl model.Class) classResponse {
	return classResponse{ID: cl.ID, TeacherID: cl.TeacherID, Name: cl.Name, Code: cl.Code}
}

func parseBirthDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(birthDateLayout, *raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "invalid_birth_date", "birth_date debe tener formato AAAA-MM-DD", err)
	}
	return &parsed, nil
}

// Dashboard and catalog

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetDashboardStats(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"students":              stats.Students,
		"teachers":              stats.Teachers,
		"classes":               stats.Classes,
		"pending_notifications": stats.PendingNotifications,
	})
}

func (s *Server) handleGradesGroups(w http.ResponseWriter, r *http.Request) {
	grades, err := s.store.DistinctGrades(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	groups, err := s.store.DistinctGroups(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"grades": grades,
		"groups": groups,
	})
}

// Students

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	var grade *int
	if raw := r.URL.Query().Get("grade"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 6 {
			s.writeAppError(w, r, apperr.New(apperr.Validation, "invalid_grade", "grade debe ser un entero entre 1 y 6"))
			return
		}
		grade = &parsed
	}
	var group *string
	if raw := r.URL.Query().Get("group"); raw != "" {
		group = &raw
	}

	students, err := s.store.ListStudents(r.Context(), grade, group)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]studentResponse, 0, len(students))
	for _, st := range students {
		out = append(out, studentResponseFrom(st))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"students": out})
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	taken, err := s.store.StudentMatriculaExists(r.Context(), req.Matricula)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if taken {
		s.writeAppError(w, r, apperr.New(apperr.Conflict, "matricula_taken", "la matrícula ya está registrada"))
		return
	}

	student := model.Student{
		FirstName: req.FirstName,
		LastNameP: req.LastNameP,
		LastNameM: req.LastNameM,
		Grade:     req.Grade,
		Group:     req.Group,
		Matricula: req.Matricula,
		Email:     req.Email,
		CURP:      req.CURP,
		Phone:     req.Phone,
		Address:   req.Address,
		BirthDate: birthDate,
	}
	id, err := s.store.CreateStudent(r.Context(), student)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	subject, html, text := mail.WelcomeEmail(student.FullName())
	if err := s.mailer.Send(req.Email, subject, html, text); err != nil {
		// Account creation stands even when the welcome mail bounces.
		logMailFailure(req.Email, err)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := s.store.GetStudentByID(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		s.writeAppError(w, r, notFoundOr(err, "student_not_found", "alumno no encontrado"))
		return
	}
	writeJSON(w, http.StatusOK, studentResponseFrom(student))
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	affected, err := s.store.UpdateStudent(r.Context(), model.Student{
		ID:        chi.URLParam(r, "studentID"),
		FirstName: req.FirstName,
		LastNameP: req.LastNameP,
		LastNameM: req.LastNameM,
		Grade:     req.Grade,
		Group:     req.Group,
		Matricula: req.Matricula,
		Email:     req.Email,
		CURP:      req.CURP,
		Phone:     req.Phone,
		Address:   req.Address,
		BirthDate: birthDate,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "student_not_found", "alumno no encontrado"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	affected, err := s.store.DeleteStudent(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "student_not_found", "alumno no encontrado"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handlePromoteStudents(w http.ResponseWriter, r *http.Request) {
	s.shiftGrades(w, r, 1)
}

func (s *Server) handleDemoteStudents(w http.ResponseWriter, r *http.Request) {
	s.shiftGrades(w, r, -1)
}

func (s *Server) shiftGrades(w http.ResponseWriter, r *http.Request, delta int) {
	var req shiftGradesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !req.All && req.Grade == nil && req.Group == nil {
		s.writeAppError(w, r, apperr.New(apperr.Validation, "missing_scope", "indique grade, group o all"))
		return
	}
	if req.Grade != nil && (*req.Grade < 1 || *req.Grade > 6) {
		s.writeAppError(w, r, apperr.New(apperr.Validation, "invalid_grade", "grade debe ser un entero entre 1 y 6"))
		return
	}

	affected, err := s.store.ShiftGrades(r.Context(), delta, req.Grade, req.Group, req.All)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": affected})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	grade, err := strconv.Atoi(chi.URLParam(r, "grade"))
	if err != nil || grade < 1 || grade > 6 {
		s.writeAppError(w, r, apperr.New(apperr.Validation, "invalid_grade", "grade debe ser un entero entre 1 y 6"))
		return
	}
	group := chi.URLParam(r, "group")

	deleted, err := s.store.DeleteStudentsByGradeGroup(r.Context(), grade, group)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// Teachers

func (s *Server) handleListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := s.store.ListTeachers(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]teacherResponse, 0, len(teachers))
	for _, tc := range teachers {
		out = append(out, teacherResponseFrom(tc))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"teachers": out})
}

func (s *Server) handleCreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req teacherRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	taken, err := s.store.TeacherEmailExists(r.Context(), req.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if taken {
		s.writeAppError(w, r, apperr.New(apperr.Conflict, "email_taken", "el correo ya está registrado"))
		return
	}

	teacher := model.Teacher{
		FirstName: req.FirstName,
		LastNameP: req.LastNameP,
		LastNameM: req.LastNameM,
		Email:     req.Email,
		Phone:     req.Phone,
	}
	id, err := s.store.CreateTeacher(r.Context(), teacher)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	subject, html, text := mail.WelcomeEmail(teacher.FullName())
	if err := s.mailer.Send(req.Email, subject, html, text); err != nil {
		logMailFailure(req.Email, err)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetTeacher(w http.ResponseWriter, r *http.Request) {
	teacher, err := s.store.GetTeacherByID(r.Context(), chi.URLParam(r, "teacherID"))
	if err != nil {
		s.writeAppError(w, r, notFoundOr(err, "teacher_not_found", "maestro no encontrado"))
		return
	}
	writeJSON(w, http.StatusOK, teacherResponseFrom(teacher))
}

func (s *Server) handleUpdateTeacher(w http.ResponseWriter, r *http.Request) {
	var req teacherRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	affected, err := s.store.UpdateTeacher(r.Context(), model.Teacher{
		ID:        chi.URLParam(r, "teacherID"),
		FirstName: req.FirstName,
		LastNameP: req.LastNameP,
		LastNameM: req.LastNameM,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "teacher_not_found", "maestro no encontrado"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteTeacher(w http.ResponseWriter, r *http.Request) {
	affected, err := s.store.DeleteTeacher(r.Context(), chi.URLParam(r, "teacherID"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "teacher_not_found", "maestro no encontrado"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Classes

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.store.ListClasses(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]classResponse, 0, len(classes))
	for _, cl := range classes {
		out = append(out, classResponseFrom(cl))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"classes": out})
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req classRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	if _, err := s.store.GetTeacherByID(r.Context(), req.TeacherID); err != nil {
		s.writeAppError(w, r, notFoundOr(err, "teacher_not_found", "maestro no encontrado"))
		return
	}
	taken, err := s.store.ClassCodeExists(r.Context(), req.Code)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if taken {
		s.writeAppError(w, r, apperr.New(apperr.Conflict, "code_taken", "el código de clase ya existe"))
		return
	}

	id, err := s.store.CreateClass(r.Context(), model.Class{
		TeacherID: req.TeacherID,
		Name:      req.Name,
		Code:      req.Code,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	class, err := s.store.GetClassByID(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		s.writeAppError(w, r, notFoundOr(err, "class_not_found", "clase no encontrada"))
		return
	}
	writeJSON(w, http.StatusOK, classResponseFrom(class))
}

func (s *Server) handleUpdateClass(w http.ResponseWriter, r *http.Request) {
	var req classRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	affected, err := s.store.UpdateClass(r.Context(), model.Class{
		ID:        chi.URLParam(r, "classID"),
		TeacherID: req.TeacherID,
		Name:      req.Name,
		Code:      req.Code,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "class_not_found", "clase no encontrada"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	affected, err := s.store.DeleteClass(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "class_not_found", "clase no encontrada"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Enrollments

func (s *Server) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if _, err := s.store.GetClassByID(r.Context(), classID); err != nil {
		s.writeAppError(w, r, notFoundOr(err, "class_not_found", "clase no encontrada"))
		return
	}

	students, err := s.store.ListEnrolledStudents(r.Context(), classID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]studentResponse, 0, len(students))
	for _, st := range students {
		out = append(out, studentResponseFrom(st))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"students": out})
}

func (s *Server) handleCreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req enrollmentRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	if _, err := s.store.GetStudentByID(r.Context(), req.StudentID); err != nil {
		s.writeAppError(w, r, notFoundOr(err, "student_not_found", "alumno no encontrado"))
		return
	}
	if _, err := s.store.GetClassByID(r.Context(), req.ClassID); err != nil {
		s.writeAppError(w, r, notFoundOr(err, "class_not_found", "clase no encontrada"))
		return
	}

	exists, err := s.store.EnrollmentExists(r.Context(), req.StudentID, req.ClassID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if exists {
		s.writeAppError(w, r, apperr.New(apperr.Conflict, "already_enrolled", "el alumno ya está inscrito en la clase"))
		return
	}

	id, err := s.store.CreateEnrollment(r.Context(), req.StudentID, req.ClassID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleDeleteEnrollment(w http.ResponseWriter, r *http.Request) {
	affected, err := s.store.DeleteEnrollment(r.Context(), chi.URLParam(r, "enrollmentID"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if affected == 0 {
		s.writeAppError(w, r, apperr.New(apperr.NotFound, "enrollment_not_found", "inscripción no encontrada"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Teacher and student class listings

func (s *Server) handleTeacherClasses(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	summaries, err := s.store.ListClassesByTeacher(r.Context(), claims.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	type entry struct {
		classResponse
		StudentCount int `json:"student_count"`
	}
	out := make([]entry, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, entry{
			classResponse: classResponseFrom(summary.Class),
			StudentCount:  summary.StudentCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"classes": out})
}

func (s *Server) handleTeacherClassRoster(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	classID := chi.URLParam(r, "classID")

	if err := s.requireOwnClass(r.Context(), classID, claims.UserID); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	students, err := s.store.ListEnrolledStudents(r.Context(), classID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := make([]studentResponse, 0, len(students))
	for _, st := range students {
		out = append(out, studentResponseFrom(st))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"students": out})
}

func (s *Server) handleStudentClasses(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	classes, err := s.store.ListClassesByStudent(r.Context(), claims.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	type entry struct {
		classResponse
		TeacherName string `json:"teacher_name"`
	}
	out := make([]entry, 0, len(classes))
	for _, cl := range classes {
		name := ""
		teacher, err := s.store.GetTeacherByID(r.Context(), cl.TeacherID)
		if err == nil {
			name = teacher.FullName()
		} else if !errors.Is(err, pgxNoRows) {
			s.writeAppError(w, r, err)
			return
		}
		out = append(out, entry{classResponse: classResponseFrom(cl), TeacherName: name})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"classes": out})
}
