package session

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards against a leaked Loop.Run goroutine: every test that
// starts a Loop must cancel its context and let Run return before the
// test ends.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("time.Sleep"),
	)
}
