package models

import "time"

// Stats represents ledger statistics for a track
type Stats struct {
	TotalFiles       int64
	TotalSize        int64
	TransferredFiles int64
	TransferredSize  int64
	PresentFiles     int64
	NotSubmitted     int64
	FieldMissing     int64
	FailedFiles      int64
	StagedFiles      int64
	StagedSize       int64
}

// Run is one invocation of the sync driver as recorded in the ledger.
type Run struct {
	ID         string
	Track      string
	StartIndex int
	Passes     int
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}
