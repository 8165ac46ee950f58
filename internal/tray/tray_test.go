package tray

import "testing"

func TestTray_HandleToggle(t *testing.T) {
	tr := New(true)

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.handleToggle()
	tr.handleToggle()

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("toggle callbacks = %v, want [false true]", got)
	}
	if !tr.IsEnabled() {
		t.Error("IsEnabled() = false after two toggles")
	}
}

func TestTray_Callbacks(t *testing.T) {
	tr := New(false)

	recalibrated, opened := 0, 0
	tr.OnRecalibrate(func() { recalibrated++ })
	tr.OnDashboard(func() { opened++ })

	tr.call(func() func() { return tr.onRecalibrate })
	tr.call(func() func() { return tr.onDashboard })
	tr.call(func() func() { return tr.onQuit }) // unset is a no-op

	if recalibrated != 1 || opened != 1 {
		t.Errorf("recalibrated = %d, opened = %d", recalibrated, opened)
	}
	if tr.IsEnabled() {
		t.Error("IsEnabled() = true for a tray created paused")
	}
}

func TestTitles(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{toggleTitle(true), "● Enabled"},
		{toggleTitle(false), "○ Paused"},
		{lastGestureTitle("", 0), "Last: none"},
		{lastGestureTitle("jump", 0.9), "Last: jump (90%)"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTray_SetLastGestureBeforeRun(t *testing.T) {
	// Menu items do not exist until Run; this must not panic.
	New(true).SetLastGesture("block", 0.9)
}
