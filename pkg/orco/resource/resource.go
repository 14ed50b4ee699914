// Package resource wraps pkg/orco/memory with subject-format validation,
// optional-locking short-circuit, and violation-mapped errors.
package resource

import (
	"context"

	"github.com/flowcore/orco/pkg/orco/event"
	"github.com/flowcore/orco/pkg/orco/memory"
	"github.com/flowcore/orco/pkg/orco/violation"
)

// Resource wraps a memory.Memory with the sync-resource behavior required
// by the orchestrator and resumable handler: subject validation, an
// optional-locking short-circuit, and violation-mapped failures.
type Resource struct {
	store           memory.Memory
	requiresLocking bool
}

// New builds a Resource over store. requiresLocking mirrors the
// orchestrator's own requiresResourceLocking flag; when false, Lock/Unlock
// become no-ops that always report Acquired.
func New(store memory.Memory, requiresLocking bool) *Resource {
	return &Resource{store: store, requiresLocking: requiresLocking}
}

// Read loads the record for subject, validating the subject format first.
func (r *Resource) Read(ctx context.Context, subject string) ([]byte, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}
	data, err := r.store.Read(ctx, subject)
	if err != nil {
		return nil, violation.NewTransaction(violation.ReadFailure, "read failed for subject "+subject, err)
	}
	return data, nil
}

// Write persists newRecord for subject, conditioned on prevRecord.
func (r *Resource) Write(ctx context.Context, subject string, newRecord, prevRecord []byte) error {
	if err := validateSubject(subject); err != nil {
		return err
	}
	if err := r.store.Write(ctx, subject, newRecord, prevRecord); err != nil {
		return violation.NewTransaction(violation.WriteFailure, "write failed for subject "+subject, err)
	}
	return nil
}

// Lock acquires the per-subject lock for token, short-circuiting to a
// no-op success when the resource does not require locking.
func (r *Resource) Lock(ctx context.Context, subject, token string) error {
	if err := validateSubject(subject); err != nil {
		return err
	}
	if !r.requiresLocking {
		return nil
	}

	result, err := r.store.Lock(ctx, subject, token)
	if err != nil {
		return violation.NewTransaction(violation.LockFailure, "lock failed for subject "+subject, err)
	}
	switch result {
	case memory.Acquired, memory.AlreadyAcquired:
		// AlreadyAcquired is treated as idempotent re-entry, not a
		// violation — see SPEC_FULL.md's Open Question decision.
		return nil
	default:
		return violation.NewTransaction(violation.LockUnacquired, "lock unacquired for subject "+subject, nil)
	}
}

// Unlock releases the per-subject lock, a no-op when locking is disabled.
// Never fails, per the Memory interface's own unlock contract.
func (r *Resource) Unlock(ctx context.Context, subject, token string) {
	if !r.requiresLocking {
		return
	}
	if err := validateSubject(subject); err != nil {
		return
	}
	r.store.Unlock(ctx, subject, token)
}

// RequiresLocking reports whether this resource enforces locking.
func (r *Resource) RequiresLocking() bool {
	return r.requiresLocking
}

func validateSubject(subject string) error {
	if subject == "" {
		return violation.NewTransaction(violation.InvalidSubject, "subject is empty", nil)
	}
	if _, err := event.Decode(subject); err != nil {
		return violation.NewTransaction(violation.InvalidSubject, "subject does not decode", err)
	}
	return nil
}
