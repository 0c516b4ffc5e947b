// Package model defines the data shared between the freezer engine and its
// external collaborators (the managed-app registry, the settings store).
package model

import "time"

// FreezeMode selects how the engine treats a ManagedApp once it leaves the
// foreground.
type FreezeMode int

const (
	// FreezeModeTerminate kills the app outright instead of freezing it.
	FreezeModeTerminate FreezeMode = iota
	// FreezeModeSignal suspends the app with SIGSTOP/SIGCONT.
	FreezeModeSignal
	// FreezeModeSignalBreak is FreezeModeSignal plus a network-capability revoke on freeze.
	FreezeModeSignalBreak
	// FreezeModeFreezer suspends the app via the selected cgroup freezer backend.
	FreezeModeFreezer
	// FreezeModeFreezerBreak is FreezeModeFreezer plus a network-capability revoke on freeze.
	FreezeModeFreezerBreak
	// FreezeModeWhitelist exempts the app from freezing entirely.
	FreezeModeWhitelist
	// FreezeModeWhiteforce is FreezeModeWhitelist that additionally survives config resets.
	FreezeModeWhiteforce
)

func (m FreezeMode) String() string {
	switch m {
	case FreezeModeTerminate:
		return "TERMINATE"
	case FreezeModeSignal:
		return "SIGNAL"
	case FreezeModeSignalBreak:
		return "SIGNAL_BREAK"
	case FreezeModeFreezer:
		return "FREEZER"
	case FreezeModeFreezerBreak:
		return "FREEZER_BREAK"
	case FreezeModeWhitelist:
		return "WHITELIST"
	case FreezeModeWhiteforce:
		return "WHITEFORCE"
	default:
		return "UNKNOWN"
	}
}

// ManagedApp is the core's view of a single installed application under
// management. The registry is the system of record for everything except
// Pids/StartTS/StopTS/TotalRunningTime/FailFreezeCount, which the core
// mutates as it observes procfs and drives freezes.
type ManagedApp struct {
	UID     int
	Package string
	Label   string

	FreezeMode FreezeMode
	IsTolerant bool

	// Pids is only trusted immediately after a procfs refresh for this uid.
	Pids []int

	StartTS          time.Time
	StopTS           time.Time
	TotalRunningTime time.Duration
	FailFreezeCount  int
}

// IsWhitelist reports whether the app is exempt from all freeze activity.
func (a *ManagedApp) IsWhitelist() bool {
	return a.FreezeMode == FreezeModeWhitelist || a.FreezeMode == FreezeModeWhiteforce
}

// IsSignalOrFreezer reports whether the app is driven by SIGSTOP/SIGCONT or
// a cgroup freezer backend (as opposed to termination or whitelisting).
func (a *ManagedApp) IsSignalOrFreezer() bool {
	switch a.FreezeMode {
	case FreezeModeSignal, FreezeModeSignalBreak, FreezeModeFreezer, FreezeModeFreezerBreak:
		return true
	default:
		return false
	}
}

// IsSignalMode reports whether the app is driven purely by POSIX signals.
func (a *ManagedApp) IsSignalMode() bool {
	return a.FreezeMode == FreezeModeSignal || a.FreezeMode == FreezeModeSignalBreak
}

// IsTerminateMode reports whether the app is killed rather than frozen.
func (a *ManagedApp) IsTerminateMode() bool {
	return a.FreezeMode == FreezeModeTerminate
}

// NeedsBreakNetwork reports whether a successful freeze should also revoke
// the app's network capability via the external system-tools collaborator.
func (a *ManagedApp) NeedsBreakNetwork() bool {
	return a.FreezeMode == FreezeModeSignalBreak || a.FreezeMode == FreezeModeFreezerBreak
}
