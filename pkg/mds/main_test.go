package mds_test

import (
	"os"
	"testing"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
)

// TestMain lets the test binary double as the mds-worker child.
func TestMain(m *testing.M) {
	if os.Getenv(mds.ChildEnv) == "1" {
		os.Exit(mds.ChildMain(os.Args[1:], os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}
