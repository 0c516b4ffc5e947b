package model

import "testing"

func TestFreezeModeClassification(t *testing.T) {
	cases := []struct {
		mode           FreezeMode
		whitelist      bool
		signalOrFreeze bool
		signal         bool
		terminate      bool
		breakNetwork   bool
	}{
		{FreezeModeTerminate, false, false, false, true, false},
		{FreezeModeSignal, false, true, true, false, false},
		{FreezeModeSignalBreak, false, true, true, false, true},
		{FreezeModeFreezer, false, true, false, false, false},
		{FreezeModeFreezerBreak, false, true, false, false, true},
		{FreezeModeWhitelist, true, false, false, false, false},
		{FreezeModeWhiteforce, true, false, false, false, false},
	}

	for _, tc := range cases {
		a := &ManagedApp{FreezeMode: tc.mode}
		if got := a.IsWhitelist(); got != tc.whitelist {
			t.Errorf("%s: IsWhitelist() = %v, want %v", tc.mode, got, tc.whitelist)
		}
		if got := a.IsSignalOrFreezer(); got != tc.signalOrFreeze {
			t.Errorf("%s: IsSignalOrFreezer() = %v, want %v", tc.mode, got, tc.signalOrFreeze)
		}
		if got := a.IsSignalMode(); got != tc.signal {
			t.Errorf("%s: IsSignalMode() = %v, want %v", tc.mode, got, tc.signal)
		}
		if got := a.IsTerminateMode(); got != tc.terminate {
			t.Errorf("%s: IsTerminateMode() = %v, want %v", tc.mode, got, tc.terminate)
		}
		if got := a.NeedsBreakNetwork(); got != tc.breakNetwork {
			t.Errorf("%s: NeedsBreakNetwork() = %v, want %v", tc.mode, got, tc.breakNetwork)
		}
	}
}

func TestFreezeModeStringUnknown(t *testing.T) {
	if got := FreezeMode(99).String(); got != "UNKNOWN" {
		t.Errorf("String() for out-of-range mode = %q, want UNKNOWN", got)
	}
}
