// Package chidbmaint is an opt-in sidecar that schedules periodic
// (*chidb.DB).Flush calls, for embedders who want writes durable sooner
// than the next Close without flushing after every statement themselves
// (spec.md §5 Durability: "implementation may flush more aggressively").
// The synchronous core has no scheduling dependency of its own; this
// package is the only place that pulls in a cron library.
package chidbmaint

import (
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/chidb-go/chidb"
)

// Flushable is the subset of *chidb.DB that AutoFlusher needs. A plain
// interface keeps this package testable without a real database file.
type Flushable interface {
	Flush() error
}

// AutoFlusher runs db.Flush() on a cron schedule until Stop is called.
// Grounded on the teacher's internal/storage.Scheduler: a cron.Cron plus
// a mutex-guarded running flag, adapted from arbitrary SQL jobs down to
// a single recurring flush task.
type AutoFlusher struct {
	db  Flushable
	log *log.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New creates an AutoFlusher for db that fires on schedule (six-field
// cron syntax with seconds, e.g. "0 */5 * * * *" for every five
// minutes, matching the teacher's job scheduler). A nil logger discards
// flush failures.
func New(db Flushable, schedule string, logger *log.Logger) (*AutoFlusher, error) {
	c := cron.New(cron.WithSeconds())
	af := &AutoFlusher{db: db, log: logger, cron: c}
	if _, err := c.AddFunc(schedule, af.flush); err != nil {
		return nil, err
	}
	return af, nil
}

// Start begins the scheduler loop. Calling Start twice is a no-op.
func (af *AutoFlusher) Start() {
	af.mu.Lock()
	defer af.mu.Unlock()
	if af.running {
		return
	}
	af.running = true
	af.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight flush to finish.
// Calling Stop before Start, or twice, is a no-op.
func (af *AutoFlusher) Stop() {
	af.mu.Lock()
	defer af.mu.Unlock()
	if !af.running {
		return
	}
	af.running = false
	ctx := af.cron.Stop()
	<-ctx.Done()
}

func (af *AutoFlusher) flush() {
	if err := af.db.Flush(); err != nil {
		if af.log != nil {
			af.log.Printf("chidbmaint: flush failed: %v", err)
		}
	}
}

var _ Flushable = (*chidb.DB)(nil)
