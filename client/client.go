// Package client composes the codec, encryption, storage, key placement
// and registry into the user-level operations: upload, share, unshare,
// download, archive and restore. Each operation is a linear sequence of
// stages; the first failure stops the sequence and is reported as a
// StageError naming the stage.
//
// Upload and share write blobs before the ledger and remove them again if
// a later stage fails. The ledger write is the only thing that makes an
// operation take effect, so a share links the recipient's placement only
// after the ledger accepts it.
package client

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/libshare-go/directory"
	"github.com/bitfsorg/libshare-go/hybrid"
	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/keyplace"
	"github.com/bitfsorg/libshare-go/ledger"
	"github.com/bitfsorg/libshare-go/multihash"
	"github.com/bitfsorg/libshare-go/registry"
	"github.com/bitfsorg/libshare-go/session"
)

// Options tunes a Client.
type Options struct {
	// Logger receives operation logs. Nil discards.
	Logger *slog.Logger

	// UnshareRetries bounds stale-index retries. Zero uses
	// registry.DefaultRetries; negative disables retries.
	UnshareRetries int
}

// Client runs operations for one session.
type Client struct {
	sess     session.SessionContext
	registry *registry.Adapter
	keys     *keyplace.Placer
	logger   *slog.Logger
}

// New creates a Client bound to s.
func New(s session.SessionContext, opts Options) (*Client, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("identity", s.Identity)

	reg := registry.New(s.Ledger, s.Directory, logger)
	switch {
	case opts.UnshareRetries > 0:
		reg.Retries = opts.UnshareRetries
	case opts.UnshareRetries < 0:
		reg.Retries = 0
	}

	return &Client{
		sess:     s,
		registry: reg,
		keys:     keyplace.New(s.Store, s.Index),
		logger:   logger,
	}, nil
}

// Identity returns the session identity.
func (c *Client) Identity() identity.Identity { return c.sess.Identity }

// Register publishes the session public key in the directory.
func (c *Client) Register(ctx context.Context) (identity.Identity, error) {
	reg, ok := c.sess.Directory.(directory.Registrar)
	if !ok {
		return "", ErrNoRegistrar
	}
	id, err := reg.Register(ctx, c.sess.PublicKey())
	if err != nil {
		return "", fmt.Errorf("client: register: %w", err)
	}
	c.logger.Info("public key registered")
	return id, nil
}

// UploadResult describes a completed upload.
type UploadResult struct {
	FileID  ledger.FileID
	Content multihash.Locator
	KeyBlob multihash.Locator
	Size    int
}

// Upload encrypts plaintext under a fresh key, stores the payload and a
// key blob wrapped for the session identity, and registers the file.
func (c *Client) Upload(ctx context.Context, name string, plaintext []byte) (*UploadResult, error) {
	var (
		key     *hybrid.ContentKey
		payload []byte
		hash    [32]byte
		blob    []byte
		res     = &UploadResult{Size: len(plaintext)}
	)
	defer func() {
		if key != nil {
			key.Zero()
		}
	}()

	err := runStages(ctx, c.logger, "upload",
		stage{StageEncrypt, func(context.Context) error {
			var err error
			if key, err = hybrid.GenerateContentKey(); err != nil {
				return err
			}
			if payload, err = hybrid.SealPayload(plaintext, key); err != nil {
				return err
			}
			hash = sha256.Sum256(plaintext)
			return nil
		}},
		stage{StageStoreContent, func(ctx context.Context) error {
			var err error
			res.Content, err = c.sess.Store.Put(ctx, payload)
			return err
		}},
		stage{StageWrapSelf, func(context.Context) error {
			var err error
			blob, err = hybrid.WrapKeyBlob(key, c.sess.PublicKey())
			return err
		}},
		stage{StageStoreKey, func(ctx context.Context) error {
			var err error
			res.KeyBlob, err = c.keys.Place(ctx, res.Content, c.sess.Identity, blob)
			return err
		}},
		stage{StageRegister, func(ctx context.Context) error {
			content, err := res.Content.Triple()
			if err != nil {
				return err
			}
			res.FileID, err = c.registry.Create(ctx, c.sess.Identity, content, hash, name)
			return err
		}},
	)
	if err != nil {
		if !res.KeyBlob.IsZero() {
			c.unplace(ctx, res.Content, c.sess.Identity)
		}
		return nil, err
	}
	c.logger.Info("file uploaded", "file_id", res.FileID, "locator", res.Content, "size", res.Size)
	return res, nil
}

// ShareResult describes a completed share.
type ShareResult struct {
	Recipient identity.Identity
	KeyBlob   multihash.Locator
}

// Share wraps the file key for recipient and records the share. Every
// precondition is checked before anything is written.
func (c *Client) Share(ctx context.Context, id ledger.FileID, recipient identity.Identity) (*ShareResult, error) {
	var (
		rec       *ledger.FileRecord
		content   multihash.Locator
		recipPub  *ec.PublicKey
		ownBlob   []byte
		recipBlob []byte
		res       = &ShareResult{Recipient: recipient}
	)

	err := runStages(ctx, c.logger, "share",
		stage{StagePrecondition, func(ctx context.Context) error {
			var err error
			if recipPub, err = c.registry.CheckShare(ctx, c.sess.Identity, id, recipient); err != nil {
				return err
			}
			if rec, err = c.sess.Ledger.GetRecord(ctx, id); err != nil {
				return err
			}
			content, err = multihash.FromTriple(rec.Content)
			return err
		}},
		stage{StageFetchKey, func(ctx context.Context) error {
			var err error
			ownBlob, err = c.ownKeyBlob(ctx, rec, content)
			return err
		}},
		stage{StageRewrap, func(context.Context) error {
			var err error
			recipBlob, err = hybrid.RewrapKeyBlob(ownBlob, c.sess.PrivateKey, recipPub)
			return err
		}},
		stage{StageStoreKey, func(ctx context.Context) error {
			var err error
			res.KeyBlob, err = c.keys.Put(ctx, recipBlob)
			return err
		}},
		stage{StageRegister, func(ctx context.Context) error {
			keyTriple, err := res.KeyBlob.Triple()
			if err != nil {
				return err
			}
			return c.registry.Share(ctx, c.sess.Identity, id, recipient, keyTriple)
		}},
	)
	if err != nil {
		if !res.KeyBlob.IsZero() {
			if dropErr := c.keys.Drop(context.WithoutCancel(ctx), res.KeyBlob); dropErr != nil {
				c.logger.Warn("could not drop unshared key blob", "locator", res.KeyBlob, "error", dropErr)
			}
		}
		return nil, err
	}

	// The placement is bound only once the ledger lists the recipient. The
	// share has already taken effect, so a failed link is logged rather than
	// reported: the recipient also resolves the key through the ledger.
	if err := c.keys.Link(context.WithoutCancel(ctx), content, recipient, res.KeyBlob); err != nil {
		c.logger.Warn("key placement not linked", "file_id", id, "recipient", recipient, "error", err)
	}
	c.logger.Info("file shared", "file_id", id, "recipient", recipient, "locator", res.KeyBlob)
	return res, nil
}

// Unshare removes recipient from the ledger and then revokes the
// recipient's key blob placement. Copies the recipient already holds are
// not affected.
//
// If an earlier Unshare committed on the ledger but failed to revoke, calling
// Unshare again finishes the revocation. Unsharing a recipient that was never
// shared and holds no placement fails with registry.ErrPreconditionFailed.
func (c *Client) Unshare(ctx context.Context, id ledger.FileID, recipient identity.Identity) error {
	var (
		content multihash.Locator
		keyLoc  multihash.Locator
		resumed bool
	)

	err := runStages(ctx, c.logger, "unshare",
		stage{StageUnshare, func(ctx context.Context) error {
			rec, err := c.sess.Ledger.GetRecord(ctx, id)
			if err != nil {
				return err
			}
			if content, err = multihash.FromTriple(rec.Content); err != nil {
				return err
			}
			if t, ok := rec.KeyBlobs[recipient]; ok {
				if keyLoc, err = multihash.FromTriple(t); err != nil {
					return err
				}
			}

			err = c.registry.Unshare(ctx, c.sess.Identity, id, recipient)
			if err == nil || !errors.Is(err, registry.ErrPreconditionFailed) {
				return err
			}
			if rec.Owner != c.sess.Identity || recipient == rec.Owner || rec.HasRecipient(recipient) {
				return err
			}
			// Already off the ledger. Only a leftover placement is worth
			// finishing; otherwise there was nothing to unshare.
			if _, rerr := c.keys.Resolve(ctx, content, recipient); rerr != nil {
				if errors.Is(rerr, keyplace.ErrNotFound) {
					return err
				}
				return rerr
			}
			resumed = true
			return nil
		}},
		stage{StageRevoke, func(ctx context.Context) error {
			err := c.keys.Revoke(ctx, content, recipient)
			switch {
			case errors.Is(err, keyplace.ErrNotFound):
				c.logger.Warn("no key blob placed for revoked recipient", "file_id", id, "recipient", recipient)
			case err != nil:
				return err
			}
			if keyLoc.IsZero() {
				return nil
			}
			return c.keys.Drop(ctx, keyLoc)
		}},
	)
	if err != nil {
		return err
	}
	if resumed {
		c.logger.Info("completed interrupted revocation", "file_id", id, "recipient", recipient)
		return nil
	}
	c.logger.Info("file unshared", "file_id", id, "recipient", recipient)
	return nil
}

// Download is a decrypted file.
type Download struct {
	FileID    ledger.FileID
	Name      string
	Owner     identity.Identity
	Plaintext []byte
}

// Download fetches, verifies and decrypts a file the session identity
// owns or was shared.
func (c *Client) Download(ctx context.Context, id ledger.FileID) (*Download, error) {
	var (
		rec     *ledger.FileRecord
		content multihash.Locator
		keyLoc  multihash.Locator
		payload []byte
		blob    []byte
		key     *hybrid.ContentKey
		res     = &Download{FileID: id}
	)
	defer func() {
		if key != nil {
			key.Zero()
		}
	}()

	err := runStages(ctx, c.logger, "download",
		stage{StageResolve, func(ctx context.Context) error {
			var err error
			if rec, err = c.sess.Ledger.GetRecord(ctx, id); err != nil {
				return err
			}
			var contentTriple, keyTriple multihash.Triple
			switch {
			case rec.Owner == c.sess.Identity:
				contentTriple, err = c.sess.Ledger.GetFileDetail(ctx, c.sess.Identity, id)
			case rec.HasRecipient(c.sess.Identity):
				contentTriple, keyTriple, err = c.sess.Ledger.GetSharedFileDetail(ctx, c.sess.Identity, id)
			default:
				return fmt.Errorf("%w: %s", ErrNotAuthorized, id)
			}
			if err != nil {
				return err
			}
			if content, err = multihash.FromTriple(contentTriple); err != nil {
				return err
			}
			if keyTriple.IsZero() {
				keyLoc, err = c.keys.Resolve(ctx, content, c.sess.Identity)
				return err
			}
			keyLoc, err = multihash.FromTriple(keyTriple)
			return err
		}},
		stage{StageFetchContent, func(ctx context.Context) error {
			var err error
			if payload, err = c.sess.Store.Get(ctx, content); err != nil {
				return err
			}
			return multihash.Verify(content, payload)
		}},
		stage{StageFetchKey, func(ctx context.Context) error {
			var err error
			if blob, err = c.keys.FetchAt(ctx, keyLoc); err != nil {
				return err
			}
			return multihash.Verify(keyLoc, blob)
		}},
		stage{StageUnwrap, func(context.Context) error {
			var err error
			key, err = hybrid.UnwrapKeyBlob(blob, c.sess.PrivateKey)
			return err
		}},
		stage{StageDecrypt, func(context.Context) error {
			var err error
			res.Plaintext, err = hybrid.OpenPayload(payload, key)
			return err
		}},
		stage{StageVerifyHash, func(context.Context) error {
			if sha256.Sum256(res.Plaintext) != rec.ContentHash {
				return fmt.Errorf("%w: %s", ErrContentHashMismatch, id)
			}
			return nil
		}},
	)
	if err != nil {
		return nil, err
	}
	res.Name = rec.Name
	res.Owner = rec.Owner
	c.logger.Info("file downloaded", "file_id", id, "owner", rec.Owner, "size", len(res.Plaintext))
	return res, nil
}

// Archive hides an owned file from the active listing.
func (c *Client) Archive(ctx context.Context, id ledger.FileID) error {
	return runStages(ctx, c.logger, "archive", stage{StageRegister, func(ctx context.Context) error {
		return c.registry.Archive(ctx, c.sess.Identity, id)
	}})
}

// Restore returns an archived file to the active listing.
func (c *Client) Restore(ctx context.Context, id ledger.FileID) error {
	return runStages(ctx, c.logger, "restore", stage{StageRegister, func(ctx context.Context) error {
		return c.registry.Restore(ctx, c.sess.Identity, id)
	}})
}

// Files returns the reconciled listings for the session identity.
func (c *Client) Files(ctx context.Context) (*registry.Views, error) {
	return c.registry.Views(ctx, c.sess.Identity)
}

// Record returns the ledger record for id.
func (c *Client) Record(ctx context.Context, id ledger.FileID) (*ledger.FileRecord, error) {
	return c.sess.Ledger.GetRecord(ctx, id)
}

// Recipients lists who an owned file is shared with.
func (c *Client) Recipients(ctx context.Context, id ledger.FileID) ([]identity.Identity, error) {
	return c.registry.Recipients(ctx, c.sess.Identity, id)
}

// Verify checks plaintext against the SHA-256 recorded at upload.
func (c *Client) Verify(ctx context.Context, id ledger.FileID, plaintext []byte) error {
	rec, err := c.sess.Ledger.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if sha256.Sum256(plaintext) != rec.ContentHash {
		return fmt.Errorf("%w: %s", ErrContentHashMismatch, id)
	}
	return nil
}

// ownKeyBlob returns the verified key blob the session identity can unwrap:
// its own placement when it owns the file, else the blob the ledger lists
// for it.
func (c *Client) ownKeyBlob(ctx context.Context, rec *ledger.FileRecord, content multihash.Locator) ([]byte, error) {
	var keyLoc multihash.Locator
	if rec.Owner == c.sess.Identity {
		var err error
		if keyLoc, err = c.keys.Resolve(ctx, content, c.sess.Identity); err != nil {
			return nil, err
		}
	} else {
		_, keyTriple, err := c.sess.Ledger.GetSharedFileDetail(ctx, c.sess.Identity, rec.ID)
		if err != nil {
			return nil, err
		}
		if keyLoc, err = multihash.FromTriple(keyTriple); err != nil {
			return nil, err
		}
	}
	blob, err := c.keys.FetchAt(ctx, keyLoc)
	if err != nil {
		return nil, err
	}
	if err := multihash.Verify(keyLoc, blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// unplace rolls back a placement made by a failed operation. It runs even
// if ctx was cancelled, and failures are only logged.
func (c *Client) unplace(ctx context.Context, content multihash.Locator, who identity.Identity) {
	if err := c.keys.Revoke(context.WithoutCancel(ctx), content, who); err != nil {
		c.logger.Warn("could not roll back key placement", "locator", content, "identity", who, "error", err)
	}
}

// Prune revokes key placements under an owned file for identities that are
// neither the owner nor a listed recipient, and returns them. Such
// placements are left behind by interrupted operations.
func (c *Client) Prune(ctx context.Context, id ledger.FileID) ([]identity.Identity, error) {
	rec, err := c.sess.Ledger.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Owner != c.sess.Identity {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthorized, id)
	}
	content, err := multihash.FromTriple(rec.Content)
	if err != nil {
		return nil, err
	}
	placed, err := c.keys.Placements(ctx, content)
	if err != nil {
		return nil, err
	}

	var pruned []identity.Identity
	for _, who := range placed {
		if rec.CanRead(who) {
			continue
		}
		if err := c.keys.Revoke(ctx, content, who); err != nil && !errors.Is(err, keyplace.ErrNotFound) {
			return pruned, err
		}
		pruned = append(pruned, who)
	}
	if len(pruned) > 0 {
		c.logger.Info("stale key placements pruned", "file_id", id, "count", len(pruned))
	}
	return pruned, nil
}
