// Package timeline implements the fixed-size wakeup ring that schedules
// periodic thaws for frozen signal/freezer-mode apps.
package timeline

import (
	"sync"

	"github.com/jark-labs/freezerd/internal/config"
)

// Slots is the ring's fixed size; spec.md §8 requires
// unfrozen_index[uid] = k ⇔ unfrozen_timeline[k] = uid for k ∈ [0, 4096).
const Slots = 4096

// Timeline is the 4096-slot wakeup ring plus its inverse index. idx advances
// by one per scheduler tick that calls Advance; a slot holding 0 means
// empty, since uid 0 (root) is never a managed app.
type Timeline struct {
	mu    sync.Mutex
	idx   uint32
	slots [Slots]int
	index map[int]uint32
}

func New() *Timeline {
	return &Timeline{index: make(map[int]uint32)}
}

// Clear removes any scheduled wakeup for uid, wherever its slot is.
func (t *Timeline) Clear(uid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked(uid)
}

func (t *Timeline) clearLocked(uid int) {
	if k, ok := t.index[uid]; ok {
		t.slots[k] = 0
		delete(t.index, uid)
	}
}

// ScheduleIfEnabled inserts uid into the slot wakeupTimeoutMin*60 seconds
// ahead of the current tick index, unless wakeupTimeoutMin is the sentinel
// value that disables the timeline entirely.
func (t *Timeline) ScheduleIfEnabled(uid int, wakeupTimeoutMin int) {
	if wakeupTimeoutMin == config.WakeupDisabledMinutes {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.clearLocked(uid)

	next := (t.idx + uint32(wakeupTimeoutMin*60)) % Slots
	t.slots[next] = uid
	t.index[uid] = next
}

// Advance moves the ring forward one tick and returns the uid occupying the
// new current slot (0 if empty), clearing that slot as a side effect.
func (t *Timeline) Advance() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.idx = (t.idx + 1) % Slots
	uid := t.slots[t.idx]
	if uid != 0 {
		t.slots[t.idx] = 0
		delete(t.index, uid)
	}
	return uid
}

// IndexOf reports the slot uid currently occupies, for tests asserting the
// invariant in spec.md §8.
func (t *Timeline) IndexOf(uid int) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k, ok := t.index[uid]
	return k, ok
}

// Snapshot returns every scheduled uid -> slot mapping, for the debug API.
func (t *Timeline) Snapshot() map[int]uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]uint32, len(t.index))
	for uid, k := range t.index {
		out[uid] = k
	}
	return out
}
