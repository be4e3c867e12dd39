// Package tasks defines the structure for tasks that are sent to the indexing queue.
package tasks

import (
	"time"

	"pai-semantic-go/internal/model"
)

// IndexTask represents a document waiting for background indexing.
type IndexTask struct {
	JobID      string             `json:"job_id"`
	Request    model.IndexRequest `json:"request"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}
