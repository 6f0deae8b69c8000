package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/apcore/apcore/internal/tui"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the apcorectl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("apcorectl", version)
			return nil
		},
	}
}

// newTUICmd launches the dashboard against a supervisor built in this
// same process, sharing serve's collaborator wiring (newSupervisor in
// serve.go) rather than attaching to an already-running daemon, since
// there is no remote-attach transport yet (see DESIGN.md "Open items").
func newTUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the live terminal dashboard against a locally started supervisor",
		RunE:  runTUI,
	}
	cmd.Flags().StringVar(&serveConfigPath, "config", "/etc/apcore/catalogue.yaml", "application catalogue config path")
	cmd.Flags().StringVar(&serveAppsRoot, "apps-root", "/opt/apcore/apps", "root directory applications install under")
	cmd.Flags().StringVar(&serveSandboxRoot, "sandbox-root", "/opt/apcore/sandboxes", "root directory sandboxes are assembled under")
	cmd.Flags().StringVar(&serveCgroup, "cgroup", "apcore", "cgroup v2 group name shared by reslimit and the freezer")
	return cmd
}

func runTUI(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sup, appPaths, err := newSupervisor(serveConfigPath, log)
	if err != nil {
		return err
	}
	if err := sup.StartAll(appPaths); err != nil {
		log.Error("startup failed", "error", err)
	}
	go sup.Run(ctx)

	return tui.Run(sup)
}
