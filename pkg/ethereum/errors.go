package ethereum

import "errors"

// Sentinel errors for execution node operations.
var (
	// ErrTransactionNotFound indicates a transaction was not found on the node.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTraceNotAvailable indicates the node could not produce an instruction
	// trace for the transaction.
	ErrTraceNotAvailable = errors.New("instruction trace not available")

	// ErrNodeNotReady indicates the execution node did not become ready in time.
	ErrNodeNotReady = errors.New("execution node not ready")
)
