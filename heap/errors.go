package heap

import "github.com/pkg/errors"

var (
	// ErrNoTransaction is returned if operation requiring transaction is called outside of it.
	ErrNoTransaction = errors.New("operation requires transaction")

	// ErrTransactionOpen is returned if heap is closed while transaction is still running.
	ErrTransactionOpen = errors.New("transaction is still open")

	// ErrAborted is returned by the outermost scope if nested scope failed but the error has been swallowed.
	ErrAborted = errors.New("transaction aborted")

	// ErrOutOfSpace is returned if allocation does not fit into the pool.
	ErrOutOfSpace = errors.New("out of space")

	// ErrNullOID is returned if null identifier is dereferenced.
	ErrNullOID = errors.New("null object identifier")

	// ErrInvalidOID is returned if identifier does not point to live allocation of this pool.
	ErrInvalidOID = errors.New("invalid object identifier")

	// ErrFailed is returned once transaction has been made durable but could not be applied completely.
	// Pool must be reopened so the redo log is replayed.
	ErrFailed = errors.New("heap is in failed state")
)
