package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ticket-checkout/internal/status"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPocketBaseStore(t *testing.T) {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	defer app.Cleanup()

	require.NoError(t, EnsureCollection(app))
	// second call is a no-op
	require.NoError(t, EnsureCollection(app))

	exerciseOrderStore(t, NewPocketBaseStore(app))
}

func TestPocketBaseStore_AmountsStoredAsDecimalStrings(t *testing.T) {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	defer app.Cleanup()
	require.NoError(t, EnsureCollection(app))

	s := NewPocketBaseStore(app)
	require.NoError(t, s.Create(context.Background(), newPendingOrder("order_amounts")))

	record, err := findOrderRecord(app, "order_amounts")
	require.NoError(t, err)
	assert.Equal(t, "500.00", record.GetString("base_amount"))
	assert.Equal(t, "10.41", record.GetString("gateway_fee"))
	assert.Equal(t, "520.41", record.GetString("total_amount"))

	record.Set("total_amount", "lots")
	_, err = recordToOrder(record)
	assert.ErrorIs(t, err, status.ErrInvalidOrder)
}

func TestPocketBaseStore_ConcurrentCreateSameID(t *testing.T) {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	defer app.Cleanup()
	require.NoError(t, EnsureCollection(app))

	s := NewPocketBaseStore(app)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Create(context.Background(), newPendingOrder("order_race"))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, status.ErrOrderExists)
	}
	assert.Equal(t, 1, created)
}

func TestIsUniqueViolation(t *testing.T) {
	notUnique := validation.Errors{"order_id": validation.NewError("validation_not_unique", "Value must be unique")}

	assert.True(t, isUniqueViolation(notUnique))
	assert.True(t, isUniqueViolation(fmt.Errorf("save: %w", notUnique)))
	assert.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: orders.order_id (2067)")))
	assert.False(t, isUniqueViolation(validation.Errors{"currency": validation.NewError("validation_required", "Cannot be blank")}))
	assert.False(t, isUniqueViolation(errors.New("disk I/O error")))
}
