package doze

import "testing"

func TestNoopNeverEntersOrExits(t *testing.T) {
	var d Doze = Noop{}

	if d.CheckIfNeedToEnter() {
		t.Errorf("Noop.CheckIfNeedToEnter() = true, want false")
	}
	if d.CheckIfNeedToExit() {
		t.Errorf("Noop.CheckIfNeedToExit() = true, want false")
	}
}
