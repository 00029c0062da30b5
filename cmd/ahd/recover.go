package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/afterhours/internal/config"
	"github.com/zulandar/afterhours/internal/db"
)

func newRecoverCmd() *cobra.Command {
	var (
		configPath string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Run one recovery pass for stranded dispatches",
		Long: `Finds calls stuck in DISPATCHING with no recent attempt, restarts their
escalation sequences, and exits. With --wait, stays up until every restarted
sequence has finished (acknowledged or cut off).

Normally the service does this itself at startup and on a periodic sweep;
this command is for running recovery against a stopped service's data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecover(cmd, configPath, wait)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "afterhours.yaml", "path to config file")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until restarted sequences finish")
	return cmd
}

func runRecover(cmd *cobra.Command, configPath string, wait bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	st, err := buildStack(cfg, gormDB, log.New(os.Stderr, "", log.LstdFlags))
	if err != nil {
		return err
	}
	defer st.Engine.Stop()

	n, err := st.Engine.Recover()
	if err != nil {
		return fmt.Errorf("recovery pass: %w", err)
	}
	fmt.Fprintf(out, "Recovered %d stranded dispatch(es)\n", n)

	if !wait || n == 0 {
		if n > 0 {
			fmt.Fprintln(out, "Sequences abandoned on exit; re-run with --wait or start the service.")
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(out, "Waiting for sequences to finish (Ctrl-C to abandon)...")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "Interrupted with %d sequence(s) still active\n", st.Engine.ActiveCount())
			return nil
		case <-ticker.C:
			if st.Engine.ActiveCount() == 0 {
				fmt.Fprintln(out, "All recovered sequences finished.")
				return nil
			}
		}
	}
}
