package app

import (
	"os"
	"strconv"
	"strings"
)

const testModeEnv = "SILAIBOOK_TEST_MODE"

// InTestMode reports whether SILAIBOOK_TEST_MODE asks the binaries to return
// before connecting to Postgres or Redis. Any value strconv.ParseBool accepts works.
func InTestMode() bool {
	v := strings.TrimSpace(os.Getenv(testModeEnv))
	if v == "" {
		return false
	}
	on, err := strconv.ParseBool(v)
	return err == nil && on
}
