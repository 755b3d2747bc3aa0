package router

import (
	"sync"
	"testing"
	"time"
)

func TestSameKeySerializes(t *testing.T) {
	km := NewKeyedMutex()

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("chat-1")
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInCritical)
	}
}

func TestDifferentKeysRunInParallel(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("chat-a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlockB := km.Lock("chat-b")
		close(acquired)
		unlockB()
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("different key blocked behind held lock")
	}
}

func TestEntriesAreReclaimed(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("k")
	unlock()

	km.mu.Lock()
	n := len(km.entries)
	km.mu.Unlock()
	if n != 0 {
		t.Errorf("entries = %d after release, want 0", n)
	}
}
