package repository

import (
	"database/sql"

	"github.com/unclebandit/coursetrack-backend/internal/model"
)

// InstructorRepositoryInterface is the read-only view of the platform
// user directory this service needs to resolve recipients.
type InstructorRepositoryInterface interface {
	GetByID(id string) (*model.Instructor, error)
}

// InstructorRepository is the concrete Postgres implementation
type InstructorRepository struct {
	DB *sql.DB
}

// GetByID fetches an instructor by ID; returns nil when not found
func (r *InstructorRepository) GetByID(id string) (*model.Instructor, error) {
	query := `
        SELECT id, email, display_name, scope_tag
        FROM instructors
        WHERE id = $1
    `
	row := r.DB.QueryRow(query, id)

	var inst model.Instructor
	if err := row.Scan(&inst.ID, &inst.Email, &inst.DisplayName, &inst.ScopeTag); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return &inst, nil
}

// InMemoryInstructorRepository serves the directory from a fixed map,
// for development mode and tests.
type InMemoryInstructorRepository struct {
	Instructors map[string]*model.Instructor
}

func (r *InMemoryInstructorRepository) GetByID(id string) (*model.Instructor, error) {
	inst, ok := r.Instructors[id]
	if !ok {
		return nil, nil
	}
	copied := *inst
	return &copied, nil
}

var _ InstructorRepositoryInterface = (*InstructorRepository)(nil)
var _ InstructorRepositoryInterface = (*InMemoryInstructorRepository)(nil)
