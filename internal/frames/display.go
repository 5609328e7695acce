package frames

import "sync"

// Display is the single "currently shown" frame slot. Installing a frame
// releases the one it replaces, so at most one displayed handle is live.
type Display struct {
	mgr     *Manager
	mu      sync.Mutex
	current Handle
}

// NewDisplay creates an empty slot backed by mgr.
func NewDisplay(mgr *Manager) *Display {
	return &Display{mgr: mgr}
}

// Swap installs h and releases the previously displayed frame before
// returning. Swapping in the handle already shown is a no-op.
func (d *Display) Swap(h Handle) {
	d.mu.Lock()
	prev := d.current
	d.current = h
	d.mu.Unlock()

	if prev != 0 && prev != h {
		d.mgr.Release(prev)
	}
}

// Clear empties the slot and releases its frame.
func (d *Display) Clear() {
	d.Swap(0)
}

// Current returns the displayed frame, if any.
func (d *Display) Current() (*Frame, bool) {
	d.mu.Lock()
	h := d.current
	d.mu.Unlock()
	if h == 0 {
		return nil, false
	}
	return d.mgr.Get(h)
}

// Handle returns the displayed handle, or zero when empty.
func (d *Display) Handle() Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}
