package model

import "time"

// Project is a construction site that holds inventory.
type Project struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Project statuses.
const (
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusArchived  = "archived"
)

// ValidProjectStatus reports whether s is a known project status.
func ValidProjectStatus(s string) bool {
	return s == ProjectStatusActive || s == ProjectStatusCompleted || s == ProjectStatusArchived
}

// Vendor is a supplier or builder that materials are bought from.
type Vendor struct {
	ID          int64      `json:"id"`
	CompanyName string     `json:"company_name"`
	ContactName string     `json:"contact_name,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Material is a catalogue entry (cement, rebar, scaffolding...).
type Material struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Unit        string     `json:"unit"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}
