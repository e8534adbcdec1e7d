package dispatcher

import (
	"sort"
	"sync"
	"time"

	"github.com/dshills/reframe/internal/dispatcher/handler"
)

// Metrics collects dispatch statistics.
type Metrics struct {
	mu sync.RWMutex

	commands map[string]*CommandMetrics

	totalDispatches uint64
	totalErrors     uint64
	totalPanics     uint64
	totalDuration   time.Duration
}

// CommandMetrics holds metrics for one command name.
type CommandMetrics struct {
	Name          string
	DispatchCount uint64
	ErrorCount    uint64
	NoOpCount     uint64
	TotalDuration time.Duration
	MaxDuration   time.Duration
	LastStatus    handler.ResultStatus
	LastDispatch  time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		commands: make(map[string]*CommandMetrics),
	}
}

// RecordDispatch records one dispatch.
func (m *Metrics) RecordDispatch(name string, duration time.Duration, status handler.ResultStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalDispatches++
	m.totalDuration += duration
	if status == handler.StatusError {
		m.totalErrors++
	}

	cm := m.commands[name]
	if cm == nil {
		cm = &CommandMetrics{Name: name}
		m.commands[name] = cm
	}

	cm.DispatchCount++
	cm.TotalDuration += duration
	cm.LastStatus = status
	cm.LastDispatch = time.Now()
	if duration > cm.MaxDuration {
		cm.MaxDuration = duration
	}

	switch status {
	case handler.StatusError:
		cm.ErrorCount++
	case handler.StatusNoOp:
		cm.NoOpCount++
	}
}

// RecordPanic records a panic recovery.
func (m *Metrics) RecordPanic(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPanics++
}

// TotalDispatches returns the total number of dispatches.
func (m *Metrics) TotalDispatches() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalDispatches
}

// TotalErrors returns the total number of error results.
func (m *Metrics) TotalErrors() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalErrors
}

// TotalPanics returns the total number of panics recovered.
func (m *Metrics) TotalPanics() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalPanics
}

// AverageDuration returns the average dispatch duration.
func (m *Metrics) AverageDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.totalDispatches == 0 {
		return 0
	}
	return m.totalDuration / time.Duration(m.totalDispatches)
}

// CommandStats returns a copy of the metrics for one command, or nil.
func (m *Metrics) CommandStats(name string) *CommandMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm := m.commands[name]
	if cm == nil {
		return nil
	}
	c := *cm
	return &c
}

// TopCommands returns the n most dispatched commands.
func (m *Metrics) TopCommands(n int) []*CommandMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*CommandMetrics, 0, len(m.commands))
	for _, cm := range m.commands {
		c := *cm
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DispatchCount != out[j].DispatchCount {
			return out[i].DispatchCount > out[j].DispatchCount
		}
		return out[i].Name < out[j].Name
	})

	if n > len(out) {
		n = len(out)
	}
	return out[:n]
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands = make(map[string]*CommandMetrics)
	m.totalDispatches = 0
	m.totalErrors = 0
	m.totalPanics = 0
	m.totalDuration = 0
}
