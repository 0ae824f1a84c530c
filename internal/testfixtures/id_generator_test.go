package testfixtures

import (
	"sync"
	"testing"
)

func TestIDGeneratorProducesSequentialIDs(t *testing.T) {
	gen := NewIDGenerator("reservation")

	first := gen.Next()
	second := gen.Next()

	if first != "reservation-1" || second != "reservation-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
}

func TestIDGeneratorCanReset(t *testing.T) {
	gen := NewIDGenerator("")
	_ = gen.Next()
	gen.Reset()

	if next := gen.Next(); next != "id-1" {
		t.Fatalf("expected id-1 after reset, got %q", next)
	}
}

func TestIDGeneratorIsUniqueUnderConcurrency(t *testing.T) {
	gen := NewIDGenerator("r")
	next := gen.NextFunc()

	var mu sync.Mutex
	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := next()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("expected 50 unique ids, got %d", len(seen))
	}
}
