package generator

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces a new value of type T on each call.
// The voice coordinator uses it to tag join attempts in logs.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator produces random UUIDv4 strings. It is safe for concurrent use.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// Sequence produces "<prefix>-1", "<prefix>-2", ... and is meant for
// deterministic IDs in tests and dry runs.
type Sequence struct {
	Prefix  string
	counter atomic.Uint64
}

func (s *Sequence) Next() (string, error) {
	return fmt.Sprintf("%s-%d", s.Prefix, s.counter.Add(1)), nil
}

var _ Generator[string] = (*Sequence)(nil)
