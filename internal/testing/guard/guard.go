// Package guard switches binaries into test mode when imported by a test.
package guard

import "os"

func init() {
	if os.Getenv("GEARSTOCK_TEST_MODE") == "" {
		_ = os.Setenv("GEARSTOCK_TEST_MODE", "1")
	}
}
