package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestSet_SameKeySerializes(t *testing.T) {
	s := New()

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("USDT")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("Expected at most 1 holder, saw %d", maxInside)
	}
	if s.Len() != 0 {
		t.Errorf("Expected entries to be released, got %d", s.Len())
	}
}

func TestSet_DifferentKeysDoNotBlock(t *testing.T) {
	s := New()

	unlockA := s.Lock("USDT")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := s.Lock("WETH")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on a different key blocked")
	}
}
