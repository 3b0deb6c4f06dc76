// Package storage provides the remote object store used for medical record
// attachments. Attachment bytes never touch the database; the lifecycle core
// only holds opaque object keys and issues deletes through this interface.
package storage

import (
	"context"
	"io"
)

// Object describes one stored attachment object.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// UploadOptions carries metadata for an upload.
type UploadOptions struct {
	FileName    string
	ContentType string
}

// ObjectStore is the remote storage collaborator. Delete must be idempotent:
// deleting a key that no longer exists is a success.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, opts UploadOptions) (Object, error)
	Delete(ctx context.Context, key string) error
}
