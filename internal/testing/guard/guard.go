// Package guard flips the process into test mode when imported, so binaries
// built into tests skip their runtime side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LEADS_TEST_MODE") == "" {
			_ = os.Setenv("LEADS_TEST_MODE", "1")
		}
	})
}
