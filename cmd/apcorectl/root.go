// Command apcorectl is the operator-facing CLI for the application
// supervisor core: bringing the daemon up (serve), querying and driving
// application lifecycle against a running instance (status/start/stop/
// restart/logs), and the live dashboard (tui).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiAddr  string
	logLevel string
	logFmt   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "apcorectl",
		Short: "Control the apcore application supervisor",
	}
	root.PersistentFlags().StringVar(&apiAddr, "api-addr", "127.0.0.1:8711", "apcorectl serve's management HTTP address")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&logFmt, "log-format", "text", "log format: text|json")

	root.AddCommand(newServeCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newTUICmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logFmt == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
