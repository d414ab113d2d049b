package lockmap_test

import (
	"sync"
	"testing"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/lockmap"
)

func TestLock_SerializesSameKey(t *testing.T) {
	m := lockmap.New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("k")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("expected 50 increments, got %d", counter)
	}
}

func TestLock_DifferentKeysDoNotBlock(t *testing.T) {
	m := lockmap.New()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()
	<-done
}

func TestLock_EntriesReleased(t *testing.T) {
	m := lockmap.New()
	unlock := m.Lock("a")
	if m.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", m.Len())
	}
	unlock()
	unlock() // second call is a no-op
	if m.Len() != 0 {
		t.Errorf("expected 0 entries after unlock, got %d", m.Len())
	}
}
