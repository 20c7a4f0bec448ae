package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/vk/gridloop/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates a new app instance for integration testing. Startup
// errors fail the test immediately.
func SetupAppTest(t *testing.T, appConfig *Config, modules ...registry.Module) (*App, *SafeBuffer) {
	t.Helper()

	testApp, logBuffer, err := TrySetupAppTest(t, appConfig, modules...)
	if err != nil {
		t.Fatalf("failed to set up app: %v", err)
	}
	return testApp, logBuffer
}

// TrySetupAppTest is SetupAppTest for tests that expect startup to fail: the
// construction error is returned instead of failing the test.
func TrySetupAppTest(t *testing.T, appConfig *Config, modules ...registry.Module) (*App, *SafeBuffer, error) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	appConfig.LogLevel = "debug"
	testApp, err := NewApp(logBuffer, appConfig, modules...)

	t.Cleanup(func() {
		if os.Getenv("GRIDLOOP_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer, err
}
