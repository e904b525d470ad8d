// Package errs holds the error taxonomy shared by the ranking engine.
// Callers wrap these sentinels with fmt.Errorf("...: %w") and test them with errors.Is.
package errs

import "errors"

var (
	// ErrInvalidConfiguration marks a malformed request: bad battle parameters,
	// an unknown metric or a non-positive limit. Nothing is mutated.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrAlreadyFinalized is returned when completion is retried on a battle that is
	// no longer active and has no stored result. Safe for callers to ignore.
	ErrAlreadyFinalized = errors.New("battle already finalized")

	// ErrTransientStore wraps trade-store and ledger-store failures and timeouts.
	// The failed operation did not mutate state and should be retried.
	ErrTransientStore = errors.New("transient store failure")

	// ErrNotFound is returned when a battle or ledger entry does not exist.
	ErrNotFound = errors.New("not found")
)
