package tasks

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/tunesync/internal/shared"
)

// Operation is an exclusive whole-catalog operation.
type Operation int

const (
	OpNone Operation = iota
	OpScheduledScan
	OpManualScan
	OpImport
)

func (o Operation) String() string {
	switch o {
	case OpScheduledScan:
		return "scheduled scan"
	case OpManualScan:
		return "manual scan"
	case OpImport:
		return "import"
	default:
		return "idle"
	}
}

// BusyError reports the operation currently holding the coordinator.
type BusyError struct {
	Holder  Operation
	Since   time.Time
	Subject string
}

func (e *BusyError) Error() string {
	msg := fmt.Sprintf("%s in progress since %s", e.Holder, e.Since.Format(time.RFC3339))
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	return msg
}

func (e *BusyError) Unwrap() error { return shared.ErrAlreadyRunning }

// Coordinator owns all mutable run state of the engine behind one mutex: the exclusive
// operation, the number of running drains and the set of tracks being processed.
type Coordinator struct {
	mu       sync.Mutex
	op       Operation
	since    time.Time
	subject  string
	drains   int
	inflight map[string]time.Time
	activity string
	lastScan *ScanResult
	now      func() time.Time
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{inflight: make(map[string]time.Time), now: time.Now}
}

// TryBegin acquires the exclusive slot for op without blocking. The returned release function
// must be called exactly once; it is safe to call it more than once.
func (c *Coordinator) TryBegin(op Operation, subject string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.op != OpNone {
		return nil, &BusyError{Holder: c.op, Since: c.since, Subject: c.subject}
	}

	c.op, c.since, c.subject = op, c.now(), subject

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.op, c.since, c.subject = OpNone, time.Time{}, ""
			c.mu.Unlock()
		})
	}, nil
}

// Busy reports whether an exclusive operation is active.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.op != OpNone
}

// beginDrain counts a running drain until the returned function is called.
func (c *Coordinator) beginDrain() func() {
	c.mu.Lock()
	c.drains++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.drains--
			c.mu.Unlock()
		})
	}
}

// Claim adds id to the in-flight set. It reports false when id is already being processed.
func (c *Coordinator) Claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.inflight[id]; ok {
		return false
	}
	c.inflight[id] = c.now()
	return true
}

// Release removes id from the in-flight set.
func (c *Coordinator) Release(id string) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

func (c *Coordinator) setActivity(msg string) {
	c.mu.Lock()
	c.activity = msg
	c.mu.Unlock()
}

func (c *Coordinator) setLastScan(r *ScanResult) {
	c.mu.Lock()
	c.lastScan = r
	c.mu.Unlock()
}

// Snapshot is a consistent copy of the coordinator state.
type Snapshot struct {
	Operation string      `json:"operation"`
	Busy      bool        `json:"busy"`
	Since     *time.Time  `json:"since,omitempty"`
	Subject   string      `json:"subject,omitempty"`
	Drains    int         `json:"drains"`
	InFlight  []string    `json:"in_flight"`
	Activity  string      `json:"activity,omitempty"`
	LastScan  *ScanResult `json:"last_scan,omitempty"`
}

// Snapshot copies the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Operation: c.op.String(),
		Busy:      c.op != OpNone,
		Subject:   c.subject,
		Drains:    c.drains,
		InFlight:  make([]string, 0, len(c.inflight)),
		Activity:  c.activity,
		LastScan:  c.lastScan,
	}
	if s.Busy {
		since := c.since
		s.Since = &since
	}
	for id := range c.inflight {
		s.InFlight = append(s.InFlight, id)
	}
	sort.Strings(s.InFlight)
	return s
}
