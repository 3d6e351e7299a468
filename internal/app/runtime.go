package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// testModeEnv short-circuits the binaries during `go test ./...`: the
// mains return before touching postgres or redis.
const testModeEnv = "MAGNEQ_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether runtime side effects should be skipped.
// The environment is read once; tests that flip the variable afterwards
// call RefreshTestMode.
func InTestMode() bool {
	testModeOnce.Do(RefreshTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the environment flag.
func RefreshTestMode() {
	testMode.Store(os.Getenv(testModeEnv) == "1")
}
