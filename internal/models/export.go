package models

import "time"

// ExportKind selects which dataset an export job renders.
type ExportKind string

const (
	ExportKindRoster    ExportKind = "ROSTER"
	ExportKindTimetable ExportKind = "TIMETABLE"
)

// ExportStatus tracks an export job through the queue.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is a persisted background export request. The row survives
// restarts so queued jobs can be replayed; the rendered file lives on disk
// and is reachable through the signed URL in ResultURL once finished.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	Kind         ExportKind   `db:"kind" json:"kind"`
	ClassID      string       `db:"class_id" json:"class_id"`
	Format       string       `db:"format" json:"format"`
	Status       ExportStatus `db:"status" json:"status"`
	ResultURL    *string      `db:"result_url" json:"result_url,omitempty"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
