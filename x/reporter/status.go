package reporter

import "sync"

// Status is the daemon state exposed through the healthcheck.
type Status string

const (
	StatusNotWorking Status = "not_working"
	StatusStarting   Status = "starting"
	StatusMonitoring Status = "monitoring"
	StatusProcessing Status = "processing"
	StatusRecovering Status = "recovering"
)

// StatusHolder tracks the FSM's base state with recovery as an orthogonal
// modal flag: while recovery is active it shadows whatever base state the
// FSM is in, and the base state resurfaces when recovery ends.
type StatusHolder struct {
	mu         sync.Mutex
	base       Status
	recovering bool
}

func NewStatusHolder() *StatusHolder {
	return &StatusHolder{base: StatusNotWorking}
}

// Set updates the base state.
func (h *StatusHolder) Set(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = s
}

// SetRecovering toggles the modal recovery overlay.
func (h *StatusHolder) SetRecovering(active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recovering = active
}

// Get returns the externally visible state.
func (h *StatusHolder) Get() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.recovering {
		return StatusRecovering
	}
	return h.base
}
