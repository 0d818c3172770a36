package model

import "time"

// Past project statuses.
const (
	PastProjectDraft   = "draft"
	PastProjectCreated = "created"
)

// PastProject is a portfolio entry. Media is uploaded against ProjectKey
// before the record is finalised with a name and address.
type PastProject struct {
	ID         int64      `json:"id"`
	ProjectKey string     `json:"project_key"`
	Name       string     `json:"name,omitempty"`
	Address    string     `json:"address,omitempty"`
	Status     string     `json:"status"`
	CreatedBy  *int64     `json:"created_by,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`

	Media []Media `json:"media,omitempty"`
}
