package entity

import "time"

// Department is an organisational unit with an optional head
type Department struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	HeadUserID string    `json:"head_user_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Employee places a user in a department and position
type Employee struct {
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	DepartmentID string    `json:"department_id,omitempty"`
	PositionID   string    `json:"position_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	UpdatedAt    time.Time `json:"updated_at"`
}
