package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/internal/events"
	"github.com/ShayCichocki/monica/internal/state"
	"github.com/ShayCichocki/monica/internal/tui"
	"github.com/ShayCichocki/monica/internal/webhook"
)

var (
	serveAddr      string
	serveDash      bool
	serveHeartbeat time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and heartbeat server",
	Long: `Run the HTTP server that receives task completions and heartbeats.

Endpoints:
  GET|POST /taskchain                    Graph notifications or a direct completion
  POST     /heartbeat                    Run one suggestion tick
  POST     /suggestions/:task_id/response  Accept or decline a suggestion
  POST     /renew                        Renew expiring Graph subscriptions
  GET      /healthz

Expired claims left by earlier crashes are released on startup.

Examples:
  monica serve
  monica serve --addr :9000 --heartbeat 15m
  monica serve --dash    # live dashboard in this terminal`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveDash, "dash", false, "Show the live dashboard while serving")
	serveCmd.Flags().DurationVar(&serveHeartbeat, "heartbeat", 0, "Also tick on this interval (0 relies on POST /heartbeat)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var emitter *events.Emitter
	if serveDash {
		emitter = events.NewEmitter(256)
		if cfg.Logging.File == "" {
			// Log lines would tear the alternate screen.
			log.SetOutput(io.Discard)
		}
	}

	a, err := newApp(cfg, emitter)
	if err != nil {
		return err
	}
	defer a.Close()

	if n, err := state.NewRecoveryManager(a.db).Clean(time.Now()); err != nil {
		log.Printf("[serve] Warning: claim recovery failed: %v", err)
	} else if n > 0 {
		log.Printf("[serve] released %d expired claim(s)", n)
	}

	srvCfg := webhook.Config{
		Chain:       a.chain,
		Suggest:     a.suggest,
		Sink:        a.sink,
		ClientState: cfg.Server.ClientState,
	}
	if a.todo != nil {
		srvCfg.Tasks = a.todo
		subs, err := a.subscriptions()
		if err != nil {
			return err
		}
		srvCfg.Renewer = subs
	}
	srv := webhook.NewServer(srvCfg)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- srv.Run(ctx, addr)
		stop()
	}()

	if serveHeartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runHeartbeats(ctx, a, serveHeartbeat)
		}()
	}

	if serveDash {
		program, _ := tui.NewProgram(tui.Config{
			Source:      a.db,
			Budget:      a.guard,
			Events:      emitter.Events(),
			RefreshRate: cfg.TUI.RefreshRate,
		})
		if _, err := program.Run(); err != nil {
			log.Printf("[serve] dashboard: %v", err)
		}
		stop()
	}

	wg.Wait()
	// Engines no longer run once the server and ticker have stopped.
	if emitter != nil {
		emitter.Close()
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// runHeartbeats ticks on interval until ctx is done.
func runHeartbeats(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			recs, err := a.suggest.Tick(ctx, now)
			if err != nil {
				log.Printf("[serve] heartbeat: %v", err)
			}
			if len(recs) > 0 {
				if err := a.sink.Deliver(ctx, recs); err != nil {
					log.Printf("[serve] deliver suggestions: %v", err)
				}
			}
		}
	}
}
