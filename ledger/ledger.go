// Package ledger defines the ledger contract that durably records file
// ownership and sharing, and provides BoltLedger, a bbolt-backed
// implementation.
//
// The ledger keeps four ordered lists per identity: uploaded, shared-by,
// shared-with and archived. Removal from a list is by position, so the
// caller must read the list immediately before computing an index. A write
// whose index no longer points at the expected element is rejected with
// ErrTransactionRejected wrapping ErrStaleIndex, and nothing changes.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/multihash"
)

// FileID identifies a file record.
type FileID string

// NewFileID returns a fresh random file ID.
func NewFileID() FileID {
	return FileID(uuid.NewString())
}

// ParseFileID validates s as a file ID.
func ParseFileID(s string) (FileID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileID, s)
	}
	return FileID(u.String()), nil
}

func (id FileID) String() string { return string(id) }

// FileRecord is the ledger-resident state of one file.
type FileRecord struct {
	ID          FileID                                 `cbor:"1,keyasint"`
	Owner       identity.Identity                      `cbor:"2,keyasint"`
	Name        string                                 `cbor:"3,keyasint"`
	Content     multihash.Triple                       `cbor:"4,keyasint"`
	ContentHash [32]byte                               `cbor:"5,keyasint"`
	Recipients  []identity.Identity                    `cbor:"6,keyasint"`
	KeyBlobs    map[identity.Identity]multihash.Triple `cbor:"7,keyasint"`
	Archived    bool                                   `cbor:"8,keyasint"`
	CreatedAt   time.Time                              `cbor:"9,keyasint"`
}

// HasRecipient reports whether id is listed as a recipient.
func (r *FileRecord) HasRecipient(id identity.Identity) bool {
	return slices.Contains(r.Recipients, id)
}

// CanRead reports whether id is the owner or a listed recipient.
func (r *FileRecord) CanRead(id identity.Identity) bool {
	return r.Owner == id || r.HasRecipient(id)
}

// Clone returns a deep copy.
func (r *FileRecord) Clone() *FileRecord {
	c := *r
	c.Recipients = slices.Clone(r.Recipients)
	c.KeyBlobs = make(map[identity.Identity]multihash.Triple, len(r.KeyBlobs))
	for k, v := range r.KeyBlobs {
		c.KeyBlobs[k] = v
	}
	return &c
}

// Ledger is the operation set the registry adapter consumes. Writes take
// the calling identity in from; the ledger authorizes against it.
type Ledger interface {
	// CreateFileRecord registers a new file owned by from and appends it to
	// from's uploaded list.
	CreateFileRecord(ctx context.Context, from identity.Identity, content multihash.Triple, contentHash [32]byte, name string) (FileID, error)

	// ShareFileRecord adds recipient to the file, records its key blob and
	// appends the file to from's shared-by and recipient's shared-with lists.
	ShareFileRecord(ctx context.Context, from identity.Identity, id FileID, recipient identity.Identity, keyBlob multihash.Triple) error

	// UnshareFileRecord removes recipient. ownerIdx indexes from's shared-by
	// list, recipientIdx indexes recipient's shared-with list and
	// fileRecipientIdx indexes the file's recipient list.
	UnshareFileRecord(ctx context.Context, from identity.Identity, id FileID, ownerIdx, recipientIdx, fileRecipientIdx int, recipient identity.Identity) error

	// ArchiveFileRecord marks the file archived and appends it to from's
	// archived list.
	ArchiveFileRecord(ctx context.Context, from identity.Identity, id FileID) error

	// RestoreFileRecord clears the archived flag and removes archivedIdx
	// from from's archived list.
	RestoreFileRecord(ctx context.Context, from identity.Identity, id FileID, archivedIdx int) error

	GetUploaded(ctx context.Context, who identity.Identity) ([]FileID, error)
	GetSharedByMe(ctx context.Context, who identity.Identity) ([]FileID, error)
	GetSharedWithMe(ctx context.Context, who identity.Identity) ([]FileID, error)
	GetArchived(ctx context.Context, who identity.Identity) ([]FileID, error)
	GetRecipients(ctx context.Context, id FileID) ([]identity.Identity, error)

	// GetFileDetail returns the content locator triple. Owner only.
	GetFileDetail(ctx context.Context, from identity.Identity, id FileID) (multihash.Triple, error)

	// GetSharedFileDetail returns the content and key blob triples for a
	// listed recipient.
	GetSharedFileDetail(ctx context.Context, from identity.Identity, id FileID) (content, keyBlob multihash.Triple, err error)

	// GetRecord returns a copy of the full record.
	GetRecord(ctx context.Context, id FileID) (*FileRecord, error)
}
