package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/backend/internal/repository"
)

// conflictStore fails InTx with a serialization error a fixed number of
// times before delegating.
type conflictStore struct {
	repository.Store
	failures int
	calls    int
}

func (c *conflictStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	c.calls++
	if c.calls <= c.failures {
		return fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	}
	return c.Store.InTx(ctx, fn)
}

func TestRunSerializable_RetriesOnceThenSucceeds(t *testing.T) {
	store := &conflictStore{Store: newFakeStore(), failures: 1}
	ran := 0
	err := runSerializable(context.Background(), store, func(repository.Store) error {
		ran++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 1, ran)
}

func TestRunSerializable_SecondConflictSurfacesAsConflict(t *testing.T) {
	store := &conflictStore{Store: newFakeStore(), failures: 2}
	err := runSerializable(context.Background(), store, func(repository.Store) error { return nil })
	assert.Equal(t, CodeConflict, CodeOf(err))
	assert.Equal(t, 2, store.calls)
}

func TestRunSerializable_DomainErrorsPassThroughUnretried(t *testing.T) {
	store := &conflictStore{Store: newFakeStore()}
	want := Errf(CodeDailyLimit, "quota reached")
	err := runSerializable(context.Background(), store, func(repository.Store) error { return want })
	assert.ErrorIs(t, err, want)
	assert.Equal(t, 1, store.calls)
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, repository.IsSerializationFailure(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, repository.IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, repository.IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.False(t, repository.IsSerializationFailure(errors.New("plain")))
}
