package service

import (
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	t.Parallel()
	k := newKeyedMutex()
	id := uuid.Must(uuid.NewV4())

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(id)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d", counter)
	}
	if k.size() != 0 {
		t.Fatalf("entries left: %d", k.size())
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	t.Parallel()
	k := newKeyedMutex()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	unlockA := k.Lock(a)
	unlockB := k.Lock(b) // must not block on a
	if k.size() != 2 {
		t.Fatalf("size = %d", k.size())
	}
	unlockB()
	unlockA()
	if k.size() != 0 {
		t.Fatalf("entries left: %d", k.size())
	}
}
