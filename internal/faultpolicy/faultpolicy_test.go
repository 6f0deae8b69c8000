package faultpolicy

import "testing"

func TestParseWatchdogAction(t *testing.T) {
	cases := map[string]WatchdogAction{
		"ignore":      WatchdogIgnore,
		"Stop":        WatchdogStop,
		"restart":     WatchdogRestart,
		"RestartApp":  WatchdogRestartApp,
		"stop-app":    WatchdogStopApp,
		"reboot":      WatchdogReboot,
		"":            WatchdogError,
		"gibberish":   WatchdogError,
	}
	for in, want := range cases {
		if got := ParseWatchdogAction(in); got != want {
			t.Errorf("ParseWatchdogAction(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseProcFaultAction(t *testing.T) {
	cases := map[string]ProcFaultAction{
		"ignore":     ActionIgnore,
		"Restart":    ActionRestart,
		"restartApp": ActionRestartApp,
		"stop_app":   ActionStopApp,
		"reboot":     ActionReboot,
		"":           ActionIgnore,
		"gibberish":  ActionIgnore,
	}
	for in, want := range cases {
		if got := ParseProcFaultAction(in); got != want {
			t.Errorf("ParseProcFaultAction(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestClassifyCleanExit(t *testing.T) {
	policy := ExitPolicy{Default: ActionRestart}
	if got := Classify(0, false, policy); got != ActionNoFault {
		t.Errorf("clean exit classified as %v, want ActionNoFault", got)
	}
}

func TestClassifyConfiguredFault(t *testing.T) {
	policy := ExitPolicy{
		FaultActions: map[int]ProcFaultAction{42: ActionReboot},
		Default:      ActionRestart,
	}
	if got := Classify(42, false, policy); got != ActionReboot {
		t.Errorf("configured fault classified as %v, want ActionReboot", got)
	}
	if got := Classify(7, false, policy); got != ActionRestart {
		t.Errorf("unknown fault classified as %v, want ActionRestart (default)", got)
	}
}

func TestClassifySignaled(t *testing.T) {
	policy := ExitPolicy{Default: ActionRestart, SignaledDefault: ActionStopApp}
	if got := Classify(0, true, policy); got != ActionStopApp {
		t.Errorf("signaled exit classified as %v, want ActionStopApp", got)
	}
}
