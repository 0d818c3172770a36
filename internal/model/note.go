package model

import "time"

// Note is a free-form memo with an optional reminder, linked to projects.
type Note struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Body       string     `json:"body,omitempty"`
	ReminderAt *time.Time `json:"reminder_at,omitempty"`
	ProjectIDs []int64    `json:"project_ids"`
	CreatedBy  *int64     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Attachments []Media `json:"attachments,omitempty"`
}
