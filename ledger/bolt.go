package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/multihash"
)

var (
	bucketRecords    = []byte("records")
	bucketUploaded   = []byte("uploaded")
	bucketSharedBy   = []byte("shared_by")
	bucketSharedWith = []byte("shared_with")
	bucketArchived   = []byte("archived")
)

// BoltLedger is a Ledger persisted in bbolt. Every write runs in a single
// bbolt transaction, so writes are atomic and totally ordered.
type BoltLedger struct {
	db     *bbolt.DB
	ownsDB bool

	// Now stamps new records. Defaults to time.Now.
	Now func() time.Time
}

// Compile-time interface check.
var _ Ledger = (*BoltLedger)(nil)

// OpenBoltLedger opens or creates the ledger database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltLedger(dbPath string) (*BoltLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("ledger: open bolt db: %w", err)
	}
	l, err := NewBoltLedger(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	l.ownsDB = true
	return l, nil
}

// NewBoltLedger uses an already open database. Close does not close db.
func NewBoltLedger(db *bbolt.DB) (*BoltLedger, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketUploaded, bucketSharedBy, bucketSharedWith, bucketArchived} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: create buckets: %w", err)
	}
	return &BoltLedger{db: db, Now: time.Now}, nil
}

// Close closes the database if the ledger opened it.
func (l *BoltLedger) Close() error {
	if !l.ownsDB {
		return nil
	}
	return l.db.Close()
}

// --- writes ---

// CreateFileRecord registers a new file owned by from.
func (l *BoltLedger) CreateFileRecord(ctx context.Context, from identity.Identity, content multihash.Triple, contentHash [32]byte, name string) (FileID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkIdentity(from); err != nil {
		return "", reject(err)
	}
	if err := checkTriple(content); err != nil {
		return "", reject(err)
	}

	rec := &FileRecord{
		ID:          NewFileID(),
		Owner:       from,
		Name:        name,
		Content:     content,
		ContentHash: contentHash,
		KeyBlobs:    map[identity.Identity]multihash.Triple{},
		CreatedAt:   l.Now().UTC(),
	}

	err := l.db.Update(func(tx *bbolt.Tx) error {
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		return appendList(tx, bucketUploaded, from, rec.ID)
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ShareFileRecord adds recipient to the file. The caller must be the owner
// or a listed recipient. The file is appended to the owner's shared-by list
// so that owner-only unshare can always locate it.
func (l *BoltLedger) ShareFileRecord(ctx context.Context, from identity.Identity, id FileID, recipient identity.Identity, keyBlob multihash.Triple) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIdentity(from); err != nil {
		return reject(err)
	}
	if err := checkIdentity(recipient); err != nil {
		return reject(err)
	}
	if err := checkTriple(keyBlob); err != nil {
		return reject(err)
	}

	return l.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return reject(err)
		}
		if !rec.CanRead(from) {
			return reject(fmt.Errorf("%w: %s", ErrNotAuthorized, from))
		}
		if recipient == rec.Owner || rec.HasRecipient(recipient) {
			return reject(fmt.Errorf("%w: %s", ErrAlreadyShared, recipient))
		}

		rec.Recipients = append(rec.Recipients, recipient)
		rec.KeyBlobs[recipient] = keyBlob
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		if err := appendList(tx, bucketSharedBy, rec.Owner, id); err != nil {
			return err
		}
		return appendList(tx, bucketSharedWith, recipient, id)
	})
}

// UnshareFileRecord removes recipient from the file. Every index is checked
// against the current list before anything is removed.
func (l *BoltLedger) UnshareFileRecord(ctx context.Context, from identity.Identity, id FileID, ownerIdx, recipientIdx, fileRecipientIdx int, recipient identity.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIdentity(from); err != nil {
		return reject(err)
	}
	if err := checkIdentity(recipient); err != nil {
		return reject(err)
	}

	return l.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return reject(err)
		}
		if rec.Owner != from {
			return reject(fmt.Errorf("%w: %s", ErrNotOwner, from))
		}
		if !rec.HasRecipient(recipient) {
			return reject(fmt.Errorf("%w: %s", ErrNotShared, recipient))
		}

		sharedBy, err := readList(tx, bucketSharedBy, from)
		if err != nil {
			return err
		}
		sharedWith, err := readList(tx, bucketSharedWith, recipient)
		if err != nil {
			return err
		}

		sharedBy, err = removeAt(sharedBy, ownerIdx, id, "shared-by")
		if err != nil {
			return reject(err)
		}
		sharedWith, err = removeAt(sharedWith, recipientIdx, id, "shared-with")
		if err != nil {
			return reject(err)
		}
		if fileRecipientIdx < 0 || fileRecipientIdx >= len(rec.Recipients) || rec.Recipients[fileRecipientIdx] != recipient {
			return reject(fmt.Errorf("%w: recipients[%d]", ErrStaleIndex, fileRecipientIdx))
		}
		rec.Recipients = slices.Delete(rec.Recipients, fileRecipientIdx, fileRecipientIdx+1)
		delete(rec.KeyBlobs, recipient)

		if err := putRecord(tx, rec); err != nil {
			return err
		}
		if err := writeList(tx, bucketSharedBy, from, sharedBy); err != nil {
			return err
		}
		return writeList(tx, bucketSharedWith, recipient, sharedWith)
	})
}

// ArchiveFileRecord marks the file archived. Owner only.
func (l *BoltLedger) ArchiveFileRecord(ctx context.Context, from identity.Identity, id FileID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIdentity(from); err != nil {
		return reject(err)
	}

	return l.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return reject(err)
		}
		if rec.Owner != from {
			return reject(fmt.Errorf("%w: %s", ErrNotOwner, from))
		}
		if rec.Archived {
			return reject(fmt.Errorf("%w: %s", ErrAlreadyArchived, id))
		}
		rec.Archived = true
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		return appendList(tx, bucketArchived, from, id)
	})
}

// RestoreFileRecord clears the archived flag. Owner only.
func (l *BoltLedger) RestoreFileRecord(ctx context.Context, from identity.Identity, id FileID, archivedIdx int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIdentity(from); err != nil {
		return reject(err)
	}

	return l.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return reject(err)
		}
		if rec.Owner != from {
			return reject(fmt.Errorf("%w: %s", ErrNotOwner, from))
		}
		if !rec.Archived {
			return reject(fmt.Errorf("%w: %s", ErrNotArchived, id))
		}
		archived, err := readList(tx, bucketArchived, from)
		if err != nil {
			return err
		}
		archived, err = removeAt(archived, archivedIdx, id, "archived")
		if err != nil {
			return reject(err)
		}
		rec.Archived = false
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		return writeList(tx, bucketArchived, from, archived)
	})
}

// --- reads ---

// GetUploaded returns the files who uploaded, in upload order.
func (l *BoltLedger) GetUploaded(ctx context.Context, who identity.Identity) ([]FileID, error) {
	return l.list(ctx, bucketUploaded, who)
}

// GetSharedByMe returns one entry per share of a file owned by who.
func (l *BoltLedger) GetSharedByMe(ctx context.Context, who identity.Identity) ([]FileID, error) {
	return l.list(ctx, bucketSharedBy, who)
}

// GetSharedWithMe returns the files shared to who.
func (l *BoltLedger) GetSharedWithMe(ctx context.Context, who identity.Identity) ([]FileID, error) {
	return l.list(ctx, bucketSharedWith, who)
}

// GetArchived returns the files who archived, in archive order.
func (l *BoltLedger) GetArchived(ctx context.Context, who identity.Identity) ([]FileID, error) {
	return l.list(ctx, bucketArchived, who)
}

// GetRecipients returns the file's recipient list in share order.
func (l *BoltLedger) GetRecipients(ctx context.Context, id FileID) ([]identity.Identity, error) {
	rec, err := l.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Recipients == nil {
		return []identity.Identity{}, nil
	}
	return rec.Recipients, nil
}

// GetFileDetail returns the content locator triple. Owner only.
func (l *BoltLedger) GetFileDetail(ctx context.Context, from identity.Identity, id FileID) (multihash.Triple, error) {
	rec, err := l.GetRecord(ctx, id)
	if err != nil {
		return multihash.Triple{}, err
	}
	if rec.Owner != from {
		return multihash.Triple{}, fmt.Errorf("%w: %s", ErrNotOwner, from)
	}
	return rec.Content, nil
}

// GetSharedFileDetail returns the content triple and from's key blob triple.
// from must be a listed recipient.
func (l *BoltLedger) GetSharedFileDetail(ctx context.Context, from identity.Identity, id FileID) (multihash.Triple, multihash.Triple, error) {
	rec, err := l.GetRecord(ctx, id)
	if err != nil {
		return multihash.Triple{}, multihash.Triple{}, err
	}
	key, ok := rec.KeyBlobs[from]
	if !ok || !rec.HasRecipient(from) {
		return multihash.Triple{}, multihash.Triple{}, fmt.Errorf("%w: %s", ErrNotAuthorized, from)
	}
	return rec.Content, key, nil
}

// GetRecord returns a copy of the record.
func (l *BoltLedger) GetRecord(ctx context.Context, id FileID) (*FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *FileRecord
	err := l.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *BoltLedger) list(ctx context.Context, bucket []byte, who identity.Identity) ([]FileID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIdentity(who); err != nil {
		return nil, err
	}
	var ids []FileID
	err := l.db.View(func(tx *bbolt.Tx) error {
		var err error
		ids, err = readList(tx, bucket, who)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// --- helpers ---

func checkIdentity(id identity.Identity) error {
	if _, err := identity.Parse(id.String()); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, id)
	}
	return nil
}

func checkTriple(t multihash.Triple) error {
	if _, err := multihash.FromTriple(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTriple, err)
	}
	return nil
}

func getRecord(tx *bbolt.Tx, id FileID) (*FileRecord, error) {
	data := tx.Bucket(bucketRecords).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec FileRecord
	if err := unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("ledger: decode record %s: %w", id, err)
	}
	if rec.KeyBlobs == nil {
		rec.KeyBlobs = map[identity.Identity]multihash.Triple{}
	}
	return &rec, nil
}

func putRecord(tx *bbolt.Tx, rec *FileRecord) error {
	data, err := marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: encode record %s: %w", rec.ID, err)
	}
	return tx.Bucket(bucketRecords).Put([]byte(rec.ID), data)
}

func readList(tx *bbolt.Tx, bucket []byte, who identity.Identity) ([]FileID, error) {
	data := tx.Bucket(bucket).Get([]byte(who))
	if data == nil {
		return []FileID{}, nil
	}
	var ids []FileID
	if err := unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("ledger: decode %s list for %s: %w", bucket, who, err)
	}
	if ids == nil {
		ids = []FileID{}
	}
	return ids, nil
}

func writeList(tx *bbolt.Tx, bucket []byte, who identity.Identity, ids []FileID) error {
	if len(ids) == 0 {
		return tx.Bucket(bucket).Delete([]byte(who))
	}
	data, err := marshal(ids)
	if err != nil {
		return fmt.Errorf("ledger: encode %s list: %w", bucket, err)
	}
	return tx.Bucket(bucket).Put([]byte(who), data)
}

func appendList(tx *bbolt.Tx, bucket []byte, who identity.Identity, id FileID) error {
	ids, err := readList(tx, bucket, who)
	if err != nil {
		return err
	}
	return writeList(tx, bucket, who, append(ids, id))
}

// removeAt deletes ids[idx] after checking that it still holds want.
// Order of the remaining elements is preserved.
func removeAt(ids []FileID, idx int, want FileID, list string) ([]FileID, error) {
	if idx < 0 || idx >= len(ids) || ids[idx] != want {
		return nil, fmt.Errorf("%w: %s[%d]", ErrStaleIndex, list, idx)
	}
	return slices.Delete(ids, idx, idx+1), nil
}
