package models

import (
	"time"

	"github.com/google/uuid"
)

// JobRecord is a completed job as reported in the worker's output
type JobRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
	Kudos     float64   `json:"kudos"`
}

// NewJobRecord creates a job record with a unique ID
func NewJobRecord(details string, kudos float64, at time.Time) *JobRecord {
	return &JobRecord{
		ID:        uuid.New().String(),
		Timestamp: at,
		Details:   details,
		Kudos:     kudos,
	}
}
