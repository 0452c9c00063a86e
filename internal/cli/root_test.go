package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestExitErrFlushesMetricsFile(t *testing.T) {
	dir := t.TempDir()
	oldDB, oldMetrics, oldExit, oldCleanup := dbPath, metricsFile, osExit, cleanup
	t.Cleanup(func() {
		dbPath, metricsFile, osExit, cleanup = oldDB, oldMetrics, oldExit, oldCleanup
	})
	dbPath = filepath.Join(dir, "memory.db")
	metricsFile = filepath.Join(dir, "metrics.prom")
	code := -1
	osExit = func(c int) { code = c }

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	_, done := openService(cmd)
	defer done()

	exitErr("remember", errors.New("boom"))
	if code != 1 {
		t.Fatalf("exit code: got %d, want 1", code)
	}
	b, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(b), "convo_memory_index_rebuilds_total") {
		t.Errorf("metrics file missing rebuild counter:\n%s", b)
	}
}
