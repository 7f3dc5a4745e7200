package client

import (
	"errors"
	"fmt"
)

var (
	// ErrContentHashMismatch indicates decrypted content does not match the
	// SHA-256 recorded at upload.
	ErrContentHashMismatch = errors.New("client: content hash mismatch")

	// ErrNotAuthorized indicates the session identity is neither owner nor
	// recipient of the file.
	ErrNotAuthorized = errors.New("client: not authorized for file")

	// ErrNoRegistrar indicates the session directory does not accept
	// registrations.
	ErrNoRegistrar = errors.New("client: directory does not accept registrations")
)

// Pipeline stage names.
const (
	StagePrecondition = "precondition"
	StageEncrypt      = "encrypt"
	StageStoreContent = "store-content"
	StageWrapSelf     = "wrap-self"
	StageFetchKey     = "fetch-key"
	StageRewrap       = "rewrap"
	StageStoreKey     = "store-key"
	StageRegister     = "register"
	StageUnshare      = "unshare"
	StageRevoke       = "revoke"
	StageResolve      = "resolve"
	StageFetchContent = "fetch-content"
	StageUnwrap       = "unwrap"
	StageDecrypt      = "decrypt"
	StageVerifyHash   = "verify-hash"
)

// StageError reports which stage of an operation failed. Later stages did
// not run.
type StageError struct {
	Op    string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("client: %s: %s: %v", e.Op, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
