package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetExpires(t *testing.T) {
	t.Parallel()

	b := NewBudget(30 * time.Millisecond)
	assert.False(t, b.Expired())
	assert.Greater(t, b.Remaining(), time.Duration(0))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, b.Expired())
	assert.Equal(t, time.Duration(0), b.Remaining())
}

func TestNewBudgetClampsNegative(t *testing.T) {
	t.Parallel()

	b := NewBudget(-time.Hour)
	assert.True(t, b.Expired())
	assert.Equal(t, time.Duration(0), b.Remaining())
}

func TestBatchContextExtendsDeadlineByGrace(t *testing.T) {
	t.Parallel()

	b := NewBudget(50 * time.Millisecond)
	ctx, cancel := b.BatchContext(context.Background(), 100*time.Millisecond)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	remaining := time.Until(deadline)
	assert.Greater(t, remaining, 50*time.Millisecond)
	assert.LessOrEqual(t, remaining, 150*time.Millisecond)
}
