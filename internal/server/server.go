// Package server exposes the webhook and API surface: call-event webhooks
// that feed the dispatcher, telephony callbacks that record delivery status
// and acknowledgments, and a small operator API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/zulandar/afterhours/internal/acks"
	"github.com/zulandar/afterhours/internal/dispatcher"
	"github.com/zulandar/afterhours/internal/models"
)

// Processor runs the dispatch pipeline for one inbound payload.
type Processor interface {
	Process(ctx context.Context, raw json.RawMessage) dispatcher.Result
}

// Sequencer is the retry engine surface the server needs.
type Sequencer interface {
	ActiveCount() int
	Recover() (int, error)
}

// Acknowledger records acknowledgments from any channel.
type Acknowledger interface {
	Acknowledge(ctx context.Context, callID, contactID, channel string) error
	AcknowledgeSMS(ctx context.Context, callID, contactID, body string) (bool, error)
}

// Records is the slice of the record store the handlers need.
type Records interface {
	GetCall(id string) (*models.Call, error)
	CountCallsByStatus(status string) (int64, error)
	PendingCallForContact(phone string) (*models.Call, *models.RosterEntry, error)
	EventsForCall(callID string) ([]models.DispatchEvent, error)
	UpdateEventDelivery(providerSID, status, errCode string) error
}

// StartOpts holds configuration for the dispatch server.
type StartOpts struct {
	Port       int
	Records    Records
	Dispatcher Processor
	Engine     Sequencer
	Acks       Acknowledger
	Minter     *acks.TokenMinter
	SweepCron  string // 5-field cron for the lost-dispatch sweep; empty disables
	Logger     *log.Logger
	Out        io.Writer
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Records == nil || opts.Dispatcher == nil {
		return fmt.Errorf("server: records and dispatcher are required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &handlers{
		records:    opts.Records,
		dispatcher: opts.Dispatcher,
		engine:     opts.Engine,
		acks:       opts.Acks,
		minter:     opts.Minter,
		logger:     opts.Logger,
	}
	s.register(router)

	// Periodic sweep for dispatches lost to a crash.
	if opts.SweepCron != "" && opts.Engine != nil {
		sched := cron.New()
		_, err := sched.AddFunc(opts.SweepCron, func() {
			if n, err := opts.Engine.Recover(); err != nil {
				opts.Logger.Printf("server: recovery sweep: %v", err)
			} else if n > 0 {
				opts.Logger.Printf("server: recovery sweep restarted %d sequence(s)", n)
			}
		})
		if err != nil {
			return fmt.Errorf("server: invalid sweep schedule %q: %w", opts.SweepCron, err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dispatch server listening on port %d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
