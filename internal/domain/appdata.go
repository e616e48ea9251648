package domain

import (
	"context"
	"time"
)

// AppData is the file store scoped to one app. Folders are flat, one level deep.
type AppData interface {
	// GetFolder returns ErrNotFound when the folder does not exist.
	GetFolder(ctx context.Context, name string) (Folder, error)
	// NewFolder creates the folder, or returns the existing one.
	NewFolder(ctx context.Context, name string) (Folder, error)
	GetDirectoryListing(ctx context.Context) ([]Folder, error)
}

type Folder interface {
	Name() string
	FileExists(ctx context.Context, name string) (bool, error)
	// GetFile returns ErrNotFound when the file does not exist.
	GetFile(ctx context.Context, name string) (File, error)
	NewFile(ctx context.Context, name string) (File, error)
	GetDirectoryListing(ctx context.Context) ([]File, error)
	// Delete removes the folder and its files. Deleting a missing folder succeeds.
	Delete(ctx context.Context) error
}

type File interface {
	Name() string
	Size() int64
	MTime() time.Time
	MimeType() string
	GetContent(ctx context.Context) ([]byte, error)
	PutContent(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}
