package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Schema is the Postgres schema holding the audit tables.
const Schema = "dashboard"

// Run is one catalogue build.
type Run struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Listed     int            `json:"listed"`
	Loaded     int            `json:"loaded"`
	Warnings   pq.StringArray `json:"warnings" gorm:"type:text[]"`
	Files      []File         `json:"files,omitempty" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// File is one catalogue entry published by a run.
type File struct {
	ID       uint      `json:"-" gorm:"primaryKey"`
	RunID    uuid.UUID `json:"-" gorm:"type:uuid;index"`
	Basename string    `json:"basename"`
	Path     string    `json:"path"`
	Kind     string    `json:"kind"`
	Rows     int       `json:"rows"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Feedback is one comment submitted from the dashboard.
type Feedback struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID string    `json:"session_id" gorm:"index"`
	Program   string    `json:"program"`
	Page      string    `json:"page"`
	Text      string    `json:"text"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

func (Run) TableName() string      { return Schema + ".load_runs" }
func (File) TableName() string     { return Schema + ".loaded_files" }
func (Feedback) TableName() string { return Schema + ".feedback" }
