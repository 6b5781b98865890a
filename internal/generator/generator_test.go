package generator_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/glizzus/voicelink/internal/generator"
)

func TestUUIDV4Generator_Next_Concurrent(t *testing.T) {
	regex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	gen := generator.UUIDV4Generator{}

	var mu sync.Mutex
	seen := make(map[string]struct{})

	const workers, perWorker = 8, 2000

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for range perWorker {
				id, err := gen.Next()
				if err != nil {
					t.Error("expected no error, got:", err)
					return
				}
				if !regex.MatchString(id) {
					t.Errorf("expected valid UUID format, got %s", id)
					return
				}

				mu.Lock()
				_, dup := seen[id]
				seen[id] = struct{}{}
				mu.Unlock()
				if dup {
					t.Errorf("expected a unique ID, got duplicate: %s", id)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestSequence_Next(t *testing.T) {
	seq := &generator.Sequence{Prefix: "join"}

	for _, want := range []string{"join-1", "join-2", "join-3"} {
		got, err := seq.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("Next() = %q, want %q", got, want)
		}
	}
}
