package supervise

import "sync"

// ProcManager tracks launched handles and can stop them all on shutdown.
type ProcManager struct {
	mu      sync.Mutex
	handles []*Handle
}

func NewProcManager() *ProcManager { return &ProcManager{} }

func (pm *ProcManager) Add(h *Handle) {
	pm.mu.Lock()
	pm.handles = append(pm.handles, h)
	pm.mu.Unlock()
}

// StopAll terminates all tracked processes. It proceeds best-effort.
func (pm *ProcManager) StopAll() {
	pm.mu.Lock()
	handles := append([]*Handle(nil), pm.handles...)
	pm.handles = nil
	pm.mu.Unlock()
	for _, h := range handles {
		if h != nil {
			_ = h.Stop()
		}
	}
}
