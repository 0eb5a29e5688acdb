package services

import (
	"context"

	"taskforge/backend/internal/repository"
)

// runSerializable executes fn in a serializable transaction, retrying once
// on a serialization conflict before surfacing CONFLICT to the caller.
// Every engine operation carries its own status-guard precondition, so
// re-running fn is idempotent up to the first success.
func runSerializable(ctx context.Context, store repository.Store, fn func(repository.Store) error) error {
	err := store.InTx(ctx, fn)
	if err == nil || !repository.IsSerializationFailure(err) {
		return err
	}
	if err = store.InTx(ctx, fn); err == nil {
		return nil
	}
	if repository.IsSerializationFailure(err) {
		return Errf(CodeConflict, "transaction conflict, retry")
	}
	return err
}
