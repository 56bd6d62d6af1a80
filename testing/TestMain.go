package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// outbound lists settings that would make a test talk to a real service.
var outbound = []string{"SLACK_WEBHOOK_URL", "JIRA_BASE_URL", "GOOGLE_SHEET_ID", "PG_DSN"}

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("RELNOTES_TEST_MODE", "1")
		for _, key := range outbound {
			_ = os.Unsetenv(key)
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
