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
	"gorm.io/gorm"

	"github.com/zulandar/afterhours/internal/acks"
	"github.com/zulandar/afterhours/internal/alert"
	"github.com/zulandar/afterhours/internal/business"
	"github.com/zulandar/afterhours/internal/config"
	"github.com/zulandar/afterhours/internal/db"
	"github.com/zulandar/afterhours/internal/dispatcher"
	"github.com/zulandar/afterhours/internal/notify"
	"github.com/zulandar/afterhours/internal/notify/twilio"
	"github.com/zulandar/afterhours/internal/retry"
	"github.com/zulandar/afterhours/internal/roster"
	"github.com/zulandar/afterhours/internal/server"
	"github.com/zulandar/afterhours/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch service",
		Long:  "Starts the webhook listener, recovers any dispatches lost to a previous crash, and runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "afterhours.yaml", "path to config file")
	return cmd
}

// stack is the fully wired dispatch pipeline.
type stack struct {
	Store  *store.GormStore
	Alerts alert.Notifier
	Minter *acks.TokenMinter
	Engine *retry.Engine
	Orch   *dispatcher.Orchestrator
	Acks   *acks.Handler
}

// buildStack wires the pipeline from config. The caller owns Engine.Stop.
func buildStack(cfg *config.Config, gormDB *gorm.DB, logger *log.Logger) (*stack, error) {
	records := store.NewGormStore(gormDB)

	adapter, err := twilio.New(twilio.Opts{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	})
	if err != nil {
		return nil, err
	}
	sender := notify.NewSender(adapter, records, logger)

	alerts, err := alert.FromConfig(cfg.Alerts, logger)
	if err != nil {
		return nil, err
	}

	minter := acks.NewTokenMinter(cfg.Ack.LinkSecret, time.Duration(cfg.Ack.LinkTTL))
	selector := roster.NewSelector(records)

	engine := retry.NewEngine(retry.Opts{
		Records:   records,
		Sender:    sender,
		Roster:    selector,
		Alerts:    alerts,
		Logger:    logger,
		Normal:    timingFrom(cfg.Retry.Normal),
		High:      timingFrom(cfg.Retry.High),
		BaseURL:   cfg.BaseURL,
		Minter:    minter,
		Staleness: time.Duration(cfg.Recovery.Staleness),
	})

	orch := dispatcher.New(dispatcher.Opts{
		Records:  records,
		Resolver: business.NewResolver(records),
		Roster:   selector,
		Sender:   sender,
		Engine:   engine,
		Alerts:   alerts,
		Policy:   policyFrom(cfg.Retry.Secondary),
		BaseURL:  cfg.BaseURL,
		Minter:   minter,
		Logger:   logger,
	})

	return &stack{
		Store:  records,
		Alerts: alerts,
		Minter: minter,
		Engine: engine,
		Orch:   orch,
		Acks:   acks.NewHandler(records, engine, adapter, logger),
	}, nil
}

func timingFrom(t config.TimingConfig) retry.Timing {
	offsets := make([]time.Duration, len(t.Offsets))
	for i, d := range t.Offsets {
		offsets[i] = time.Duration(d)
	}
	return retry.Timing{Offsets: offsets, Cutoff: time.Duration(t.Cutoff), MaxAttempts: t.MaxAttempts}
}

func policyFrom(p config.SecondaryPolicy) dispatcher.SecondaryPolicy {
	return dispatcher.SecondaryPolicy{
		OnOptIn:        *p.OnOptIn,
		OnHighUrgency:  *p.OnHighUrgency,
		OnPrimaryFail:  *p.OnPrimaryFail,
		OnCarrierBlock: *p.OnCarrierBlock,
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	st, err := buildStack(cfg, gormDB, logger)
	if err != nil {
		return err
	}
	defer st.Engine.Stop()

	// Pick up dispatches stranded by a previous crash before taking traffic.
	if n, err := st.Engine.Recover(); err != nil {
		logger.Printf("serve: startup recovery: %v", err)
	} else if n > 0 {
		logger.Printf("serve: recovered %d stranded dispatch(es)", n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx, server.StartOpts{
		Port:       cfg.Server.Port,
		Records:    st.Store,
		Dispatcher: st.Orch,
		Engine:     st.Engine,
		Acks:       st.Acks,
		Minter:     st.Minter,
		SweepCron:  cfg.Recovery.SweepCron,
		Logger:     logger,
		Out:        cmd.OutOrStdout(),
	})
}
