package focus

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cogconvo/captioner/pkg/core"
)

// Default mock intervals.
const (
	DefaultMockMin = 500 * time.Millisecond
	DefaultMockMax = 4500 * time.Millisecond
)

var mockChoices = [...]core.JurorID{core.JurorA, core.JurorB, core.JurorC, core.JuryForeman, core.JurorNone}

// MockSource picks a random juror, or nobody, at random intervals. It stands
// in for the eye tracker during development.
type MockSource struct {
	min, max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockSource creates a mock source. A zero seed seeds from the clock.
func NewMockSource(minWait, maxWait time.Duration, seed int64) *MockSource {
	if minWait <= 0 {
		minWait = DefaultMockMin
	}
	if maxWait < minWait {
		maxWait = minWait
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockSource{min: minWait, max: maxWait, rng: rand.New(rand.NewSource(seed))}
}

func (m *MockSource) next() (time.Duration, core.JurorID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wait := m.min
	if span := m.max - m.min; span > 0 {
		wait += time.Duration(m.rng.Int63n(int64(span)))
	}
	return wait, mockChoices[m.rng.Intn(len(mockChoices))]
}

// Run emits until ctx is done.
func (m *MockSource) Run(ctx context.Context, emit func(core.JurorID)) error {
	for {
		wait, id := m.next()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			emit(id)
		}
	}
}
