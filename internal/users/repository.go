// Package users exposes the therapist/user directory consumed by the
// billing engine. Records are managed by external flows; reads only.
package users

import (
	"context"
	"database/sql"
	"fmt"
)

// Roles mirror the portal's user model.
const (
	RoleAdmin        = "admin"
	RoleTherapist    = "therapist"
	RoleReceptionist = "receptionist"
)

// User is a portal staff record.
type User struct {
	UserID     int64
	Username   string
	Email      string
	Role       string
	EmployeeID int64
	Active     bool
}

// Repository reads the user directory.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `user_id, username, COALESCE(email, ''), role, COALESCE(employee_id, 0), active`

// FindByID returns the user or nil when unknown.
func (r *Repository) FindByID(ctx context.Context, userID int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	return scan(row)
}

// ResolveByEmployeeID returns the user with the given employee id, or nil.
func (r *Repository) ResolveByEmployeeID(ctx context.Context, employeeID int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE employee_id = $1 AND active`, employeeID)
	return scan(row)
}

// FirstTherapistWithEmployeeID returns the lowest-id active therapist that
// has an employee id assigned. The importer uses it as the default
// therapist for historical rows.
func (r *Repository) FirstTherapistWithEmployeeID(ctx context.Context) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1 AND active AND employee_id IS NOT NULL
		ORDER BY user_id
		LIMIT 1`, RoleTherapist)
	return scan(row)
}

func scan(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.UserID, &u.Username, &u.Email, &u.Role, &u.EmployeeID, &u.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	return &u, nil
}
