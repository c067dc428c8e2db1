package dispatch

import (
	"sync"
	"testing"
)

func TestRunsInSubmissionOrder(t *testing.T) {
	q := NewQueue()

	var got []int
	for i := 0; i < 100; i++ {
		n := i
		q.Submit(func() { got = append(got, n) })
	}
	q.Close()

	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, n := range got {
		if n != i {
			t.Fatalf("got[%d] = %d, want %d (out of order)", i, n, i)
		}
	}
}

func TestSerializesConcurrentProducers(t *testing.T) {
	q := NewQueue()

	// counter is unsynchronized on purpose: the queue's single goroutine is
	// the only writer, so the race detector stays quiet iff serialization
	// holds.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.Submit(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	q.Close()

	if counter != 400 {
		t.Errorf("counter = %d, want 400", counter)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	q := NewQueue()
	q.Submit(func() {})
	q.Close()
	q.Close()
}
