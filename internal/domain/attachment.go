package domain

import "time"

// AttachmentReference points at a file held by the external storage
// collaborator. The core never stores file contents.
type AttachmentReference struct {
	ID         string
	TicketID   string
	StorageKey string
	FileName   string
	SizeBytes  int64
	UploaderID *string
	CreatedAt  time.Time
}
