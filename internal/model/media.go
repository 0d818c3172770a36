package model

import (
	"strings"
	"time"
)

// Media owner kinds.
const (
	MediaOwnerInventory         = "inventory"
	MediaOwnerNote              = "note"
	MediaOwnerPastProject       = "past_project"
	MediaOwnerTransferRejection = "transfer_rejection"
	MediaOwnerProjectDocument   = "project_document"
)

// Media kinds.
const (
	MediaPhoto    = "photo"
	MediaVideo    = "video"
	MediaAudio    = "audio"
	MediaDocument = "document"
)

// Media is metadata for an uploaded file; the bytes live in blob storage.
type Media struct {
	ID         int64     `json:"id"`
	OwnerKind  string    `json:"owner_kind"`
	OwnerRef   string    `json:"owner_ref"`
	ObjectKey  string    `json:"-"`
	Filename   string    `json:"filename"`
	MIME       string    `json:"mime"`
	Kind       string    `json:"kind"`
	Size       int64     `json:"size"`
	UploadedBy *int64    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MediaKindFor classifies a MIME type.
func MediaKindFor(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaPhoto
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio
	default:
		return MediaDocument
	}
}
