package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no record exists for the file ID.
	ErrNotFound = errors.New("ledger: file record not found")

	// ErrTransactionRejected indicates the ledger refused a write. No state
	// changed. The wrapped error names the failed check.
	ErrTransactionRejected = errors.New("ledger: transaction rejected")

	// ErrStaleIndex indicates a supplied list index does not point at the
	// expected element.
	ErrStaleIndex = errors.New("ledger: stale list index")

	// ErrNotOwner indicates the caller does not own the record.
	ErrNotOwner = errors.New("ledger: caller is not the owner")

	// ErrNotAuthorized indicates the caller is neither owner nor recipient.
	ErrNotAuthorized = errors.New("ledger: caller is not authorized")

	// ErrAlreadyShared indicates the recipient is already listed.
	ErrAlreadyShared = errors.New("ledger: recipient already listed")

	// ErrNotShared indicates the recipient is not listed.
	ErrNotShared = errors.New("ledger: recipient not listed")

	// ErrAlreadyArchived indicates archive of an archived record.
	ErrAlreadyArchived = errors.New("ledger: file already archived")

	// ErrNotArchived indicates restore of an active record.
	ErrNotArchived = errors.New("ledger: file not archived")

	// ErrInvalidIdentity indicates a malformed caller or recipient identity.
	ErrInvalidIdentity = errors.New("ledger: invalid identity")

	// ErrInvalidTriple indicates a locator triple that does not decode.
	ErrInvalidTriple = errors.New("ledger: invalid locator triple")

	// ErrInvalidFileID indicates a malformed file ID.
	ErrInvalidFileID = errors.New("ledger: invalid file id")
)

func reject(err error) error {
	return fmt.Errorf("%w: %w", ErrTransactionRejected, err)
}
