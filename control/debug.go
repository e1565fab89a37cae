// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime debug handler and probe reflector for internal inspection.

package control

import (
	"sync"

	"github.com/rs/xid"
)

// TraceID is a globally unique, sortable correlation id, threaded through a
// connection's lifetime so every debug/log line it produces can be
// correlated without needing a central request-id allocator.
type TraceID = xid.ID

// NewTraceID mints a fresh correlation id.
func NewTraceID() TraceID { return xid.New() }

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns output of all probes, tagged with a fresh TraceID so
// the snapshot can be correlated against log lines emitted around the same
// time.
func (dp *DebugProbes) DumpState() (TraceID, map[string]any) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return NewTraceID(), out
}
