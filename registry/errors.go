package registry

import (
	"errors"

	"github.com/bitfsorg/libshare-go/ledger"
)

var (
	// ErrPreconditionFailed indicates a transition whose precondition does
	// not hold. It is returned before any ledger write.
	ErrPreconditionFailed = errors.New("registry: precondition failed")

	// ErrTransactionRejected is the ledger's write rejection.
	ErrTransactionRejected = ledger.ErrTransactionRejected
)
