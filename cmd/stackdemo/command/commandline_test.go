package command

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodamonte/blockingstack/stack"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cl := NewCommandline(&out, &errOut)
	cmd := cl.NewRootCmd()
	cmd.SetArgs(args)

	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// ── timeout ──────────────────────────────────────────────────────────────────

func TestTimeoutCmdGivesUp(t *testing.T) {
	t.Parallel()

	start := time.Now()
	out, _, err := execute(t, "timeout", "--timeout", "50ms")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Contains(t, out, "deadline set to:")
	assert.Contains(t, out, "timed out")
	assert.Contains(t, out, "len 1/1")
}

func TestTimeoutCmdInsertsWhenRoomAppears(t *testing.T) {
	t.Parallel()

	out, errOut, err := execute(t, "timeout", "--timeout", "2s", "--pop-after", "20ms", "--fair", "--log-level", "info")
	require.NoError(t, err)
	assert.Contains(t, out, `inserted`)
	assert.Contains(t, out, `"latecomer"`)

	// The pop is reported before the command returns, not from the timer.
	assert.Contains(t, errOut, `popped "occupant" after 20ms`)
}

func TestTimeoutCmdPopAfterDeadline(t *testing.T) {
	t.Parallel()

	out, errOut, err := execute(t, "timeout", "--timeout", "20ms", "--pop-after", "1s", "--log-level", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "timed out")
	assert.NotContains(t, errOut, "popped")
}

// ── cancel ───────────────────────────────────────────────────────────────────

func TestCancelCmdReleasesConsumers(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "cancel", "--after", "20ms", "--consumers", "4")
	require.NoError(t, err)

	assert.Contains(t, out, "main: calling cancel()")
	assert.Equal(t, 4, bytes.Count([]byte(out), []byte("released after")))
	assert.Contains(t, out, "context canceled")
	assert.Contains(t, out, "stack len 0")
}

// ── stress ───────────────────────────────────────────────────────────────────

func TestStressCmd(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "stress",
		"--producers", "3", "--consumers", "2", "--per-producer", "200",
		"--capacity", "4", "--both", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "unfair")
	assert.Contains(t, out, "fair")
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("| ok ")))
}

func TestStressCmdWithOfferTimeout(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "stress",
		"--producers", "2", "--consumers", "2", "--per-producer", "100",
		"--capacity", "2", "--offer-timeout", "5ms", "--fair")
	require.NoError(t, err)
	assert.Contains(t, out, "200")
}

// ── fairness ─────────────────────────────────────────────────────────────────

func TestMeasureFairness(t *testing.T) {
	t.Parallel()

	for _, fair := range []bool{false, true} {
		res, err := measureFairness(context.Background(), fair, 4, 200, stack.NopObserver{})
		require.NoError(t, err)

		assert.Equal(t, 200, res.Served)
		total := 0
		for _, n := range res.PerGoroutine {
			total += n
		}
		assert.Equal(t, 200, total)
		assert.GreaterOrEqual(t, res.Inversions, 0)
		assert.Less(t, res.Inversions, 200)
	}
}

func TestMeasureFairnessCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := measureFairness(ctx, true, 2, 10, stack.NopObserver{})
	require.ErrorIs(t, err, stack.ErrCancelled)
}

func TestFairnessCmd(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "fairness", "--goroutines", "3", "--rounds", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "inversions")
	assert.Contains(t, out, "unfair")
}

// ── pool ─────────────────────────────────────────────────────────────────────

func TestPoolCmd(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, "pool",
		"--workers", "2", "--queue", "4", "--jobs", "6",
		"--submit-every", "1ms", "--submit-timeout", "5s", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "submitted=6")
	assert.Contains(t, out, "started=6")
	assert.Contains(t, out, "dropped=0")
}

// ── configuration ────────────────────────────────────────────────────────────

func TestUnknownLogLevel(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "cancel", "--after", "1ms", "--log-level", "loud")
	require.ErrorContains(t, err, `unknown log level "loud"`)
}

func TestConfigFile(t *testing.T) {
	t.Parallel()

	fn := filepath.Join(t.TempDir(), "stackdemo.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("consumers: 2\nafter: 10ms\n"), 0o600))

	out, errOut, err := execute(t, "cancel", "--config", fn)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Using config file:")
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("released after")))
}

func TestMissingConfigFile(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "cancel", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "reading config")
}

func TestEnvironmentOverridesDefault(t *testing.T) {
	t.Setenv("STACKDEMO_CONSUMERS", "1")

	out, _, err := execute(t, "cancel", "--after", "10ms")
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count([]byte(out), []byte("released after")))
}

func TestFlagBeatsEnvironment(t *testing.T) {
	t.Setenv("STACKDEMO_CONSUMERS", "1")

	out, _, err := execute(t, "cancel", "--after", "10ms", "--consumers", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, bytes.Count([]byte(out), []byte("released after")))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	_, errOut, err := execute(t, "cancel", "--after", "1ms", "--metrics-addr", "127.0.0.1:0", "--pprof", "--log-level", "info")
	require.NoError(t, err)
	assert.Contains(t, errOut, "serving metrics on http://127.0.0.1:")
}

// TestMetricsServerStopsWithCommand runs a command that returns immediately,
// so teardown can run before the serving goroutine is scheduled.
func TestMetricsServerStopsWithCommand(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		_, errOut, err := execute(t, "timeout", "--timeout", "1ns", "--metrics-addr", "127.0.0.1:0", "--log-level", "error")
		require.NoError(t, err)
		assert.NotContains(t, errOut, "metrics server:")
	}
}
