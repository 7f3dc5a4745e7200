// Package registry adapts the index-based ledger to intent-level
// operations. Callers say "unshare R from F"; the adapter reads each list
// fresh, computes the index and issues the ledger call, retrying when a
// concurrent writer moved the element in between.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/libshare-go/directory"
	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/ledger"
	"github.com/bitfsorg/libshare-go/multihash"
)

// DefaultRetries is how many times a stale-index rejection is retried.
const DefaultRetries = 3

// Adapter is the ownership registry adapter.
type Adapter struct {
	Ledger    ledger.Ledger
	Directory directory.Directory

	// Retries bounds re-fetch-and-retry after ErrStaleIndex. Zero disables
	// retries.
	Retries int

	Logger *slog.Logger
}

// New creates an Adapter with DefaultRetries. A nil logger discards.
func New(l ledger.Ledger, dir directory.Directory, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{Ledger: l, Directory: dir, Retries: DefaultRetries, Logger: logger}
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.Logger
}

// Create registers a new file owned by caller.
func (a *Adapter) Create(ctx context.Context, caller identity.Identity, content multihash.Triple, contentHash [32]byte, name string) (ledger.FileID, error) {
	id, err := a.Ledger.CreateFileRecord(ctx, caller, content, contentHash, name)
	if err != nil {
		return "", err
	}
	a.logger().Info("file record created", "file_id", id, "owner", caller)
	return id, nil
}

// CheckShare verifies every share precondition and returns the
// recipient's public key. It has no side effects.
func (a *Adapter) CheckShare(ctx context.Context, caller identity.Identity, id ledger.FileID, recipient identity.Identity) (*ec.PublicKey, error) {
	rec, err := a.Ledger.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.CanRead(caller) {
		return nil, fmt.Errorf("%w: %s may not share %s", ErrPreconditionFailed, caller, id)
	}
	if recipient == rec.Owner {
		return nil, fmt.Errorf("%w: %s owns %s", ErrPreconditionFailed, recipient, id)
	}
	if rec.HasRecipient(recipient) {
		return nil, fmt.Errorf("%w: %s already shared with %s", ErrPreconditionFailed, id, recipient)
	}
	pub, err := a.Directory.Get(ctx, recipient)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
		}
		return nil, err
	}
	return pub, nil
}

// Share records recipient on the file with its key blob locator.
func (a *Adapter) Share(ctx context.Context, caller identity.Identity, id ledger.FileID, recipient identity.Identity, keyBlob multihash.Triple) error {
	if _, err := a.CheckShare(ctx, caller, id, recipient); err != nil {
		return err
	}
	if err := a.Ledger.ShareFileRecord(ctx, caller, id, recipient, keyBlob); err != nil {
		return err
	}
	a.logger().Info("file shared", "file_id", id, "owner", caller, "recipient", recipient)
	return nil
}

// Unshare removes recipient from the file. Each list index is computed
// from a fresh read immediately before the ledger call.
func (a *Adapter) Unshare(ctx context.Context, caller identity.Identity, id ledger.FileID, recipient identity.Identity) error {
	return a.retry(ctx, "unshare", id, func() error {
		rec, err := a.Ledger.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if rec.Owner != caller {
			return fmt.Errorf("%w: %s does not own %s", ErrPreconditionFailed, caller, id)
		}

		sharedBy, err := a.Ledger.GetSharedByMe(ctx, caller)
		if err != nil {
			return err
		}
		sharedWith, err := a.Ledger.GetSharedWithMe(ctx, recipient)
		if err != nil {
			return err
		}
		recipients, err := a.Ledger.GetRecipients(ctx, id)
		if err != nil {
			return err
		}

		ownerIdx := slices.Index(sharedBy, id)
		recipientIdx := slices.Index(sharedWith, id)
		fileRecipientIdx := slices.Index(recipients, recipient)
		if ownerIdx < 0 || recipientIdx < 0 || fileRecipientIdx < 0 {
			return fmt.Errorf("%w: %s not shared with %s", ErrPreconditionFailed, id, recipient)
		}

		if err := a.Ledger.UnshareFileRecord(ctx, caller, id, ownerIdx, recipientIdx, fileRecipientIdx, recipient); err != nil {
			return err
		}
		a.logger().Info("file unshared", "file_id", id, "owner", caller, "recipient", recipient)
		return nil
	})
}

// Archive marks the file archived.
func (a *Adapter) Archive(ctx context.Context, caller identity.Identity, id ledger.FileID) error {
	rec, err := a.Ledger.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return fmt.Errorf("%w: %s does not own %s", ErrPreconditionFailed, caller, id)
	}
	if rec.Archived {
		return fmt.Errorf("%w: %s already archived", ErrPreconditionFailed, id)
	}
	if err := a.Ledger.ArchiveFileRecord(ctx, caller, id); err != nil {
		return err
	}
	a.logger().Info("file archived", "file_id", id, "owner", caller)
	return nil
}

// Restore returns an archived file to the active set.
func (a *Adapter) Restore(ctx context.Context, caller identity.Identity, id ledger.FileID) error {
	return a.retry(ctx, "restore", id, func() error {
		rec, err := a.Ledger.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if rec.Owner != caller {
			return fmt.Errorf("%w: %s does not own %s", ErrPreconditionFailed, caller, id)
		}
		if !rec.Archived {
			return fmt.Errorf("%w: %s is not archived", ErrPreconditionFailed, id)
		}
		archived, err := a.Ledger.GetArchived(ctx, caller)
		if err != nil {
			return err
		}
		idx := slices.Index(archived, id)
		if idx < 0 {
			return fmt.Errorf("%w: %s missing from archived list", ErrPreconditionFailed, id)
		}
		if err := a.Ledger.RestoreFileRecord(ctx, caller, id, idx); err != nil {
			return err
		}
		a.logger().Info("file restored", "file_id", id, "owner", caller)
		return nil
	})
}

// Recipients returns the file's recipients. Owner only.
func (a *Adapter) Recipients(ctx context.Context, caller identity.Identity, id ledger.FileID) ([]identity.Identity, error) {
	rec, err := a.Ledger.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Owner != caller {
		return nil, fmt.Errorf("%w: %s does not own %s", ErrPreconditionFailed, caller, id)
	}
	return a.Ledger.GetRecipients(ctx, id)
}

// retry runs op again after a stale-index rejection, up to Retries times.
func (a *Adapter) retry(ctx context.Context, what string, id ledger.FileID, op func() error) error {
	var err error
	for attempt := 0; attempt <= a.Retries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = op()
		if err == nil || !errors.Is(err, ledger.ErrStaleIndex) {
			return err
		}
		a.logger().Warn("stale list index, retrying", "op", what, "file_id", id, "attempt", attempt+1, "error", err)
	}
	return err
}
