// Package doze models the scheduler's interface to the external device-idle
// ("doze") supervisor the core coordinates with but does not own.
package doze

// Doze is the external collaborator the scheduler polls once per second to
// decide whether to back off into doze-aware behaviour (backing up and
// clearing the foreground set) or resume normal polling.
type Doze interface {
	// CheckIfNeedToExit reports whether doze mode should end this tick.
	CheckIfNeedToExit() bool
	// CheckIfNeedToEnter reports whether doze mode should begin this tick.
	CheckIfNeedToEnter() bool
}

// Noop never enters or exits doze; it is the default for deployments with
// no device-idle supervisor wired in (e.g. a desktop build used for testing
// the scheduler loop in isolation).
type Noop struct{}

func (Noop) CheckIfNeedToExit() bool  { return false }
func (Noop) CheckIfNeedToEnter() bool { return false }
