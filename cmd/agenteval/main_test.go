package main

import "testing"

func TestMainWiring(t *testing.T) {
	origSetVersion := setVersionInfo
	origExecute := executeCmd
	t.Cleanup(func() {
		setVersionInfo = origSetVersion
		executeCmd = origExecute
	})

	var gotVersion, executed bool
	setVersionInfo = func(v, c, d string) {
		gotVersion = v != "" && c != "" && d != ""
	}
	executeCmd = func() {
		executed = true
	}

	main()

	if !gotVersion || !executed {
		t.Fatalf("expected version info and execute, got version=%v execute=%v", gotVersion, executed)
	}
}
