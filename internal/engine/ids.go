package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idGenerator produces lexically time-ordered ULIDs for memory records.
// Sorting IDs sorts by creation time, which keeps debugging sane.
type idGenerator struct {
	mu      sync.Mutex
	entropy *rand.Rand
}

func newIDGenerator() *idGenerator {
	return &idGenerator{
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *idGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
