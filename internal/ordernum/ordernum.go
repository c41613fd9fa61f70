// Package ordernum issues order numbers that are unique within the process and
// sort by creation time.
package ordernum

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const Prefix = "ORD-"

type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Next never returns the same value twice for one Generator, even for calls in
// the same millisecond: the monotonic entropy increments inside a millisecond.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		return "", err
	}
	return Prefix + id.String(), nil
}
