package services

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

func TestLedger_StaysWithinBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ledger Ledger

	rng := rand.New(rand.NewSource(7))
	var held []int
	for i := 0; i < 200; i++ {
		qty := rng.Intn(3) + 1
		if len(held) > 0 && rng.Intn(2) == 0 {
			n := held[len(held)-1]
			held = held[:len(held)-1]
			require.NoError(t, ledger.Release(ctx, f.store, f.ticket.ID, n))
		} else if err := ledger.Reserve(ctx, f.store, f.ticket.ID, qty); err == nil {
			held = append(held, qty)
		} else {
			assert.ErrorIs(t, err, status.ErrInsufficientInventory)
		}

		available := f.available(t)
		assert.GreaterOrEqual(t, available, 0)
		assert.LessOrEqual(t, available, 5)
	}
}

func TestLedger_Reserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ledger Ledger

	assert.ErrorIs(t, ledger.Reserve(ctx, f.store, f.ticket.ID, 0), status.ErrValidation)
	assert.ErrorIs(t, ledger.Reserve(ctx, f.store, "missing", 1), status.ErrNotFound)

	require.NoError(t, ledger.Reserve(ctx, f.store, f.ticket.ID, 5))
	assert.ErrorIs(t, ledger.Reserve(ctx, f.store, f.ticket.ID, 1), status.ErrInsufficientInventory)

	require.NoError(t, ledger.Release(ctx, f.store, f.ticket.ID, 5))
	require.NoError(t, f.store.Tickets().SetVerification(ctx, f.ticket.ID, models.VerificationRejected))
	assert.ErrorIs(t, ledger.Reserve(ctx, f.store, f.ticket.ID, 1), status.ErrInsufficientInventory)
	assert.Equal(t, 5, f.available(t))
}

func TestLedger_ReleaseBeyondTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ledger Ledger

	err := ledger.Release(ctx, f.store, f.ticket.ID, 1)
	assert.Equal(t, status.KindInternal, status.KindOf(err))
	assert.Equal(t, 5, f.available(t))

	assert.ErrorIs(t, ledger.Release(ctx, f.store, "missing", 1), status.ErrNotFound)
}
