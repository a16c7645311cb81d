// File: internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, "tab-7")
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, "tab-7", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("CanceledByPrimary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		assert.Eventually(t, func() bool {
			return combined.Err() != nil
		}, 100*time.Millisecond, 5*time.Millisecond)
	})

	t.Run("CanceledBySecondary", func(t *testing.T) {
		secondary, cancelSecondary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		cancelSecondary()
		assert.Eventually(t, func() bool {
			return combined.Err() != nil
		}, 100*time.Millisecond, 5*time.Millisecond)
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("ExplicitCancel", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("InheritsValues", func(t *testing.T) {
		parent := context.WithValue(context.Background(), key, "tab-7")
		assert.Equal(t, "tab-7", Detach(parent).Value(key))
	})

	t.Run("IgnoresParentCancellation", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		detached := Detach(parent)

		cancel()
		assert.ErrorIs(t, parent.Err(), context.Canceled)
		assert.NoError(t, detached.Err())
		assert.Nil(t, detached.Done())

		_, hasDeadline := detached.Deadline()
		assert.False(t, hasDeadline)
	})

	t.Run("DerivedContextKeepsOwnTimeout", func(t *testing.T) {
		parent, cancelParent := context.WithCancel(context.Background())
		derived, cancelDerived := context.WithTimeout(Detach(parent), 30*time.Millisecond)
		defer cancelDerived()

		cancelParent()
		<-derived.Done()
		assert.ErrorIs(t, derived.Err(), context.DeadlineExceeded)
	})
}
