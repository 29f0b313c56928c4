package models

import (
	"time"
)

// Upload records one ingested log file. The SHA256 of the decoded content
// identifies the upload; re-uploading identical content is detected by
// hash, not filename.
type Upload struct {
	ID       string    `json:"id"`
	Filename string    `json:"filename"`
	SHA256   string    `json:"sha256"`
	Format   LogFormat `json:"format"`

	// SizeBytes is the decoded (post-gunzip) content size.
	SizeBytes int64 `json:"size_bytes"`

	EntryCount   int64 `json:"entry_count"`
	SkippedLines int64 `json:"skipped_lines"`
	AlertCount   int64 `json:"alert_count"`

	ReceivedAt time.Time `json:"received_at"`
}
