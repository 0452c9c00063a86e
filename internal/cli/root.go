// Package cli implements the convo-memory CLI commands.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rcliao/convo-memory/internal/codec"
	"github.com/rcliao/convo-memory/internal/config"
	"github.com/rcliao/convo-memory/internal/logging"
	"github.com/rcliao/convo-memory/internal/metrics"
	"github.com/rcliao/convo-memory/internal/service"
)

var (
	configPath  string
	dbPath      string
	metricsFile string

	registry   = prometheus.NewRegistry()
	cliMetrics = metrics.New(registry)

	osExit = os.Exit
	// cleanup closes the open service, if any. exitErr runs it so failed
	// runs still flush metrics.
	cleanup = func() {}
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "convo-memory",
	Short: "Long-term memory for conversational agents",
	Long: "Stores durable per-user facts and rolling per-session summaries for an agent loop. " +
		"Facts are deduplicated and merged on write, indexed by topic, and kept in SQLite or Postgres.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite database path (default: $CONVO_MEMORY_DB or ~/.convo-memory/memory.db)")
	RootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
}

// openService loads configuration and opens the service. The returned
// function closes it and flushes metrics.
func openService(cmd *cobra.Command) (*service.Service, func()) {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		exitErr("configure logging", err)
	}

	svc, err := service.Open(cmd.Context(), cfg, log, cliMetrics)
	if err != nil {
		exitErr("open store", err)
	}
	var once sync.Once
	done := func() {
		once.Do(func() {
			svc.Close()
			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
					log.WithError(err).Warn("write metrics file")
				}
			}
		})
	}
	cleanup = done
	return svc, done
}

// readContent joins positional args, or reads piped stdin when there are none.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func printJSON(v any) {
	if err := codec.Encode(os.Stdout, v); err != nil {
		exitErr("write output", err)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	cleanup()
	osExit(1)
}
