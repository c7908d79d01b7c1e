package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"colegio/backend/internal/model"
	"colegio/backend/internal/repository"
)

// Bulk imports accept a JSON batch of rows (typically parsed client-side from
// a spreadsheet). Rows that fail validation or collide with existing records
// are skipped with a reason; the accepted remainder commits in one
// transaction.

type importResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Reasons  []string `json:"reasons,omitempty"`
}

type importStudentsRequest struct {
	Students []studentRequest `json:"students" validate:"required,min=1,dive"`
}

func (s *Server) handleImportStudents(w http.ResponseWriter, r *http.Request) {
	var req importStudentsRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	var accepted []model.Student
	result := importResult{}
	seen := map[string]bool{}
	for i, row := range req.Students {
		if row.Grade < 1 || row.Grade > 6 {
			result.skip(i+1, "grado fuera de rango")
			continue
		}
		if seen[row.Matricula] {
			result.skip(i+1, "matrícula repetida en el archivo")
			continue
		}
		taken, err := s.store.StudentMatriculaExists(r.Context(), row.Matricula)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if taken {
			result.skip(i+1, "matrícula ya registrada")
			continue
		}
		birthDate, err := parseBirthDate(row.BirthDate)
		if err != nil {
			result.skip(i+1, "fecha de nacimiento inválida")
			continue
		}
		seen[row.Matricula] = true
		accepted = append(accepted, model.Student{
			FirstName: row.FirstName,
			LastNameP: row.LastNameP,
			LastNameM: row.LastNameM,
			Grade:     row.Grade,
			Group:     row.Group,
			Matricula: row.Matricula,
			Email:     row.Email,
			CURP:      row.CURP,
			Phone:     row.Phone,
			Address:   row.Address,
			BirthDate: birthDate,
		})
	}

	err := s.store.WithTx(r.Context(), func(tx pgx.Tx) error {
		for _, st := range accepted {
			if _, err := repository.InsertStudentTx(r.Context(), tx, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	result.Inserted = len(accepted)
	writeJSON(w, http.StatusOK, result)
}

type importTeachersRequest struct {
	Teachers []teacherRequest `json:"teachers" validate:"required,min=1,dive"`
}

func (s *Server) handleImportTeachers(w http.ResponseWriter, r *http.Request) {
	var req importTeachersRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	var accepted []model.Teacher
	result := importResult{}
	seen := map[string]bool{}
	for i, row := range req.Teachers {
		if seen[row.Email] {
			result.skip(i+1, "correo repetido en el archivo")
			continue
		}
		taken, err := s.store.TeacherEmailExists(r.Context(), row.Email)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if taken {
			result.skip(i+1, "correo ya registrado")
			continue
		}
		seen[row.Email] = true
		accepted = append(accepted, model.Teacher{
			FirstName: row.FirstName,
			LastNameP: row.LastNameP,
			LastNameM: row.LastNameM,
			Email:     row.Email,
			Phone:     row.Phone,
		})
	}

	err := s.store.WithTx(r.Context(), func(tx pgx.Tx) error {
		for _, tc := range accepted {
			if _, err := repository.InsertTeacherTx(r.Context(), tx, tc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	result.Inserted = len(accepted)
	writeJSON(w, http.StatusOK, result)
}

type importClassesRequest struct {
	Classes []classRequest `json:"classes" validate:"required,min=1,dive"`
}

func (s *Server) handleImportClasses(w http.ResponseWriter, r *http.Request) {
	var req importClassesRequest
	if err := s.bind(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	var accepted []model.Class
	result := importResult{}
	seen := map[string]bool{}
	for i, row := range req.Classes {
		if seen[row.Code] {
			result.skip(i+1, "código repetido en el archivo")
			continue
		}
		taken, err := s.store.ClassCodeExists(r.Context(), row.Code)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if taken {
			result.skip(i+1, "código de clase ya existe")
			continue
		}
		if _, err := s.store.GetTeacherByID(r.Context(), row.TeacherID); err != nil {
			if errors.Is(err, pgxNoRows) {
				result.skip(i+1, "maestro no encontrado")
				continue
			}
			s.writeAppError(w, r, err)
			return
		}
		seen[row.Code] = true
		accepted = append(accepted, model.Class{
			TeacherID: row.TeacherID,
			Name:      row.Name,
			Code:      row.Code,
		})
	}

	err := s.store.WithTx(r.Context(), func(tx pgx.Tx) error {
		for _, cl := range accepted {
			if _, err := repository.InsertClassTx(r.Context(), tx, cl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	result.Inserted = len(accepted)
	writeJSON(w, http.StatusOK, result)
}

func (res *importResult) skip(rowNumber int, reason string) {
	res.Skipped++
	res.Reasons = append(res.Reasons, fmt.Sprintf("fila %d: %s", rowNumber, reason))
}
