// Package guard puts the binaries into test mode. Tests that touch a main
// package import it for its side effect so main returns before dialing
// PostgreSQL or Redis.
package guard

import (
	"os"
	"sync"
)

// Env is the variable app.InTestMode reads.
const Env = "PARTSLEDGER_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
