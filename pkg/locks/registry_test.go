package locks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePair(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{name: "already sorted", a: "alpha", b: "beta", want: "alpha::beta"},
		{name: "reversed", a: "beta", b: "alpha", want: "alpha::beta"},
		{name: "equal ids", a: "x", b: "x", want: "x::x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePair(tt.a, tt.b))
			assert.Equal(t, NormalizePair(tt.a, tt.b), NormalizePair(tt.b, tt.a),
				"normalization must be symmetric")
		})
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	t.Run("same key yields same lock", func(t *testing.T) {
		l1 := r.Get("entity:warren")
		l2 := r.Get("entity:warren")
		assert.Same(t, l1, l2)
	})

	t.Run("different keys yield different locks", func(t *testing.T) {
		l1 := r.Get("a")
		l2 := r.Get("b")
		assert.NotSame(t, l1, l2)
	})

	t.Run("reset drops the pool", func(t *testing.T) {
		r := NewRegistry()
		before := r.Get("k")
		require.Equal(t, 1, r.Len())
		r.Reset()
		assert.Equal(t, 0, r.Len())
		assert.NotSame(t, before, r.Get("k"))
	})
}

func TestAcquireInOrder(t *testing.T) {
	t.Run("duplicate and empty keys are ignored", func(t *testing.T) {
		r := NewRegistry()
		h := r.AcquireInOrder("b", "a", "b", "", "a")
		defer h.Release()
		assert.Equal(t, 2, r.Len())
	})

	t.Run("release is idempotent", func(t *testing.T) {
		r := NewRegistry()
		h := r.AcquireInOrder("x", "y")
		h.Release()
		assert.NotPanics(t, func() { h.Release() })
	})

	t.Run("released locks can be reacquired", func(t *testing.T) {
		r := NewRegistry()
		h := r.AcquireInOrder("k1", "k2")
		h.Release()

		done := make(chan struct{})
		go func() {
			h2 := r.AcquireInOrder("k2", "k1")
			h2.Release()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("reacquisition blocked; locks were not released")
		}
	})

	t.Run("overlapping multi-key writers do not deadlock", func(t *testing.T) {
		r := NewRegistry()
		pairs := [][]string{
			{"a", "b"},
			{"b", "c"},
			{"c", "a"},
			{"a", "c"},
			{"b", "a"},
		}

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			for _, p := range pairs {
				wg.Add(1)
				go func(keys []string) {
					defer wg.Done()
					h := r.AcquireInOrder(keys...)
					time.Sleep(time.Microsecond)
					h.Release()
				}(p)
			}
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("writers deadlocked")
		}
	})

	t.Run("mutual exclusion holds across normalized pairs", func(t *testing.T) {
		r := NewRegistry()
		key := NormalizePair("tgt", "src")

		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h := r.AcquireInOrder(key)
				counter++
				h.Release()
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, counter)
	})
}

func TestDefaultRegistry(t *testing.T) {
	assert.Same(t, Default(), Default())
}
