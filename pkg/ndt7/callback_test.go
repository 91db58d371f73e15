package ndt7

import (
	"sync"
	"testing"
)

func TestCompletion_resolve(t *testing.T) {
	t.Run("only the first resolver wins", func(t *testing.T) {
		c := &completion{}
		if !c.resolve() {
			t.Errorf("first resolve() = false, want true")
		}
		if c.resolve() {
			t.Errorf("second resolve() = true, want false")
		}
	})

	t.Run("concurrent resolvers yield exactly one winner", func(t *testing.T) {
		c := &completion{}
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.resolve() {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Errorf("got %d winners, want 1", wins)
		}
	})
}

func TestCallbackQueue(t *testing.T) {
	t.Run("callbacks are delivered in order", func(t *testing.T) {
		q := newCallbackQueue()
		var got []int
		for i := 0; i < 100; i++ {
			i := i
			q.enqueue(func() { got = append(got, i) })
		}
		q.close()
		if len(got) != 100 {
			t.Fatalf("delivered %d callbacks, want 100", len(got))
		}
		for i, v := range got {
			if v != i {
				t.Fatalf("callback %d delivered out of order (got %d)", i, v)
			}
		}
	})

	t.Run("enqueue after close is dropped", func(t *testing.T) {
		q := newCallbackQueue()
		delivered := 0
		q.enqueue(func() { delivered++ })
		q.close()
		q.enqueue(func() { delivered++ })
		if delivered != 1 {
			t.Errorf("delivered %d callbacks, want 1", delivered)
		}
	})

	t.Run("close is safe with concurrent producers", func(t *testing.T) {
		q := newCallbackQueue()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					q.enqueue(func() {})
				}
			}()
		}
		q.close()
		wg.Wait()
	})
}
