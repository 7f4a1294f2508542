package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a malformed query, limit, or batch size.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderUnknown signals a request for a provider that is not configured.
	ErrProviderUnknown = errors.New("unknown embedding provider")
	// ErrProviderUnsupported signals a provider lacking a required capability.
	ErrProviderUnsupported = errors.New("provider capability not supported")
	// ErrProviderUnavailable signals a transient embedding provider failure
	// (network, timeout, quota).
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrCredentialMissing signals that no credential was supplied and none is configured.
	ErrCredentialMissing = errors.New("provider credential missing")
	// ErrIndexUnavailable signals that the vector index is empty or not yet built.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrVectorDimMismatch signals inconsistent vector dimensionality.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRebuildFailed signals an aborted embedding rebuild.
	ErrRebuildFailed = errors.New("rebuild failed")
)

// ProviderUnsupportedError wraps ErrProviderUnsupported with the provider
// name and the capability it lacks. Capability gaps are surfaced to the
// caller, never silently downgraded.
type ProviderUnsupportedError struct {
	Provider   string
	Capability string
}

func (e *ProviderUnsupportedError) Error() string {
	return fmt.Sprintf("provider %q does not support %s", e.Provider, e.Capability)
}

func (e *ProviderUnsupportedError) Unwrap() error { return ErrProviderUnsupported }

// NewProviderUnsupported creates a capability error for a provider.
func NewProviderUnsupported(provider, capability string) error {
	return &ProviderUnsupportedError{Provider: provider, Capability: capability}
}

// RebuildError wraps ErrRebuildFailed with the 1-based index of the failing
// batch. A failed rebuild leaves the previous vector index intact.
type RebuildError struct {
	Batch int
	Err   error
}

func (e *RebuildError) Error() string {
	return fmt.Sprintf("%s at batch %d: %v", ErrRebuildFailed.Error(), e.Batch, e.Err)
}

func (e *RebuildError) Unwrap() []error { return []error{ErrRebuildFailed, e.Err} }

// NewRebuildError creates a rebuild failure for the given batch.
func NewRebuildError(batch int, err error) error {
	return &RebuildError{Batch: batch, Err: err}
}
