// Package transfer_catalog keeps a record of completed transfers outside the
// storage directory.
package transfer_catalog

import (
	"context"
	"time"
)

// Upload describes a file that was stored successfully.
type Upload struct {
	Name     string
	Size     int64
	StoredAt time.Time
	Remote   string
	ConnID   string
}

// Record is what the catalog knows about a name.
type Record struct {
	Upload
	Downloads int64
}

type Catalog interface {
	RecordUpload(ctx context.Context, u Upload) error
	RecordDownload(ctx context.Context, name string) error
	Close() error
}

// Nop discards every record. It is used when no catalog backend is configured.
type Nop struct{}

func (Nop) RecordUpload(context.Context, Upload) error   { return nil }
func (Nop) RecordDownload(context.Context, string) error { return nil }
func (Nop) Close() error                                 { return nil }
