package fsqueue

import (
	"fmt"
	"sync"

	"github.com/INLOpen/nexuscommit/internal/clock"
)

// batchDirPrefix names every batch directory under queue/ and error/.
const batchDirPrefix = "batch-"

// timeIDGenerator produces unique, monotonically increasing, lexically
// sortable identifiers of the form <unixMilli-hex>-<counter>. The counter
// disambiguates identifiers generated within the same millisecond and keeps
// the sequence increasing even if the clock steps backwards.
type timeIDGenerator struct {
	mu     sync.Mutex
	clk    clock.Clock
	lastMS int64
	seq    int
}

func newTimeIDGenerator(clk clock.Clock) *timeIDGenerator {
	return &timeIDGenerator{clk: clk}
}

func (g *timeIDGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.clk.Now().UnixMilli()
	if ms <= g.lastMS {
		ms = g.lastMS
		g.seq++
	} else {
		g.lastMS = ms
		g.seq = 0
	}
	return fmt.Sprintf("%012x-%04d", ms, g.seq)
}
