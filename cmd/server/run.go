package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/TheGojiOG/mc-server-wrapper/internal/api"
	"github.com/TheGojiOG/mc-server-wrapper/internal/audit"
	"github.com/TheGojiOG/mc-server-wrapper/internal/backup"
	"github.com/TheGojiOG/mc-server-wrapper/internal/config"
	"github.com/TheGojiOG/mc-server-wrapper/internal/console"
	"github.com/TheGojiOG/mc-server-wrapper/internal/database"
	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
	"github.com/TheGojiOG/mc-server-wrapper/internal/metrics"
	"github.com/TheGojiOG/mc-server-wrapper/internal/rpc"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
	"github.com/TheGojiOG/mc-server-wrapper/internal/tlscert"
	"github.com/TheGojiOG/mc-server-wrapper/internal/websocket"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [-- executable args...]",
		Short: "Start the Minecraft server and serve the control APIs",
		Long: "Start the Minecraft server under supervision. Arguments after -- replace\n" +
			"process.executable and process.args from the configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Process.Executable = args[0]
				cfg.Process.Args = args[1:]
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := setupLogging(cfg); err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer logging.Close()

			return run(cmd.Context(), cfg, cfgPath)
		},
	}
}

func run(parent context.Context, cfg *config.Config, cfgPath string) error {
	logger := logging.L()

	certFile, keyFile, err := prepareTLS(cfg)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Path, cfg.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	activity, err := logging.NewActivityLogger(db.DB, filepath.Join(cfg.Storage.DataDir, "logs", "activity"))
	if err != nil {
		return fmt.Errorf("failed to initialize activity logger: %w", err)
	}
	defer activity.Close()

	history := console.NewCommandHistory(db.DB)
	sessions := audit.NewSessionStore(db.DB)
	// Sessions still open belong to a wrapper that did not shut down cleanly.
	if n, err := sessions.CloseAll(time.Now(), "wrapper_restart"); err != nil {
		logger.Warn("failed to close stale player sessions", "error", err)
	} else if n > 0 {
		logger.Info("closed stale player sessions", "count", n)
	}
	auditObserver := audit.NewObserver(activity, history, sessions, 0)
	defer auditObserver.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	hub := websocket.NewHub()
	feed := server.NewFeed()
	defer feed.Close()
	ring := console.NewRingBuffer(cfg.Console.HistoryLines)

	outputs := []console.Output{ring, console.OutputFunc(hub.PublishLine), collector}
	if cfg.Console.Echo {
		outputs = append(outputs, console.Echo(os.Stdout))
	}
	if cfg.Console.LogFile != "" {
		lw, err := console.NewLogWriter(console.LogWriterConfig{
			Path:       cfg.Console.LogFile,
			MaxSizeMB:  cfg.Console.LogMaxSize,
			MaxBackups: cfg.Console.LogMaxBackups,
			MaxAgeDays: cfg.Console.LogMaxAge,
		})
		if err != nil {
			return err
		}
		defer lw.Close()
		outputs = append(outputs, lw)
	}
	sink := console.NewSink(cfg.Console.SinkBuffer, outputs...)
	sink.OnDrop(collector.RecordSinkDrop)

	backups := backup.NewManager(db.DB, cfg.Backup, cfg.Security.SSH)

	worldDir := cfg.Backup.WorldDir
	if !filepath.IsAbs(worldDir) {
		worldDir = filepath.Join(cfg.Process.WorkingDir, worldDir)
	}

	sup := server.New(server.Options{
		Params: server.StartParams{
			Executable: cfg.Process.Executable,
			Args:       cfg.Process.Args,
			Dir:        cfg.Process.WorkingDir,
			Env:        cfg.Process.Env,
		},
		WorldDir:     worldDir,
		StopCommand:  cfg.Process.StopCommand,
		StopTimeout:  cfg.Process.StopTimeout,
		KillGrace:    cfg.Process.KillGrace,
		ReadyTimeout: cfg.Process.ReadyTimeout,
		EchoTimeout:  cfg.Process.EchoTimeout,
		Archiver:     backups,
		Sink:         sink,
		Observers:    []server.Observer{collector, hub, feed, auditObserver},
	})
	defer sup.Close()

	control := &instrumentedSupervisor{Supervisor: sup, metrics: collector, activity: activity}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sink.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	logger.Info("starting server", "command", cfg.Process.Executable, "args", cfg.Process.Args, "dir", cfg.Process.WorkingDir)
	if err := sup.Start(); err != nil {
		cancel()
		g.Wait()
		return &exitError{code: 1, err: err}
	}

	if cfg.Process.WaitReady {
		readyCtx, readyCancel := context.WithTimeout(ctx, cfg.Process.ReadyTimeout)
		err := sup.WaitReady(readyCtx)
		readyCancel()
		switch {
		case err == nil:
			logger.Info("server is ready")
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("server did not report ready in time; serving anyway", "timeout", cfg.Process.ReadyTimeout.String())
		default:
			logger.Error("server exited before becoming ready", "error", err)
		}
	}

	srv := &http.Server{
		Addr: cfg.Address(),
		Handler: api.SetupRouter(api.Deps{
			Config:     cfg,
			ConfigPath: cfgPath,
			Supervisor: control,
			Ring:       ring,
			History:    history,
			Dropped:    sink.Dropped,
			Hub:        hub,
			Backups:    backups,
			Activity:   activity,
			Sessions:   sessions,
			Metrics:    collector.Handler(),
		}),
		ReadTimeout: 15 * time.Second,
		// Stop and backup requests last as long as the server takes to exit.
		WriteTimeout: cfg.Process.StopTimeout + cfg.Process.KillGrace + cfg.Process.ReadyTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	g.Go(func() error {
		log.Printf("Starting HTTP server on %s", srv.Addr)
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.Address)
		if err != nil {
			cancel()
			g.Wait()
			stopAndWait(sup, cfg.Process)
			return fmt.Errorf("grpc listen: %w", err)
		}
		var grpcOpts []grpc.ServerOption
		if cfg.GRPC.TLS {
			creds, err := credentials.NewServerTLSFromFile(certFile, keyFile)
			if err != nil {
				lis.Close()
				cancel()
				g.Wait()
				stopAndWait(sup, cfg.Process)
				return fmt.Errorf("grpc credentials: %w", err)
			}
			grpcOpts = append(grpcOpts, grpc.Creds(creds))
		}
		grpcServer := rpc.NewServer(rpc.NewService(control, feed, cfg.Process.EchoTimeout), grpcOpts...)
		g.Go(func() error {
			log.Printf("Starting gRPC control service on %s", lis.Addr())
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			// Event streams only end once the feed closes.
			feed.Close()
			grpcServer.GracefulStop()
			return nil
		})
	}

	if cfg.Process.ConsoleInput {
		source := console.NewSource(os.Stdin, os.Stderr, control)
		g.Go(func() error {
			return source.Run(gctx)
		})
	}

	if cfg.Backup.Schedule != "" {
		scheduler, err := backup.NewScheduler(cfg.Backup.Schedule, control)
		if err != nil {
			logger.Error("backup schedule disabled", "error", err)
		} else {
			g.Go(func() error {
				return scheduler.Run(gctx)
			})
		}
	}

	// A terminal supervisor state ends the wrapper unless the operator asked
	// to keep the APIs up after a requested stop.
	g.Go(func() error {
		select {
		case <-sup.Terminated():
		case <-gctx.Done():
			return nil
		}
		if sup.Err() == nil && !cfg.Process.ExitOnStop {
			logger.Info("server stopped; APIs stay up until the wrapper is signalled")
			<-gctx.Done()
			return nil
		}
		logger.Info("server terminated, shutting down", "status", sup.Status().State)
		cancel()
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	g.Go(func() error {
		select {
		case sig := <-quit:
			logger.Info("received signal, stopping server", "signal", sig.String())
			stopAndWait(sup, cfg.Process)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	groupErr := g.Wait()
	stopAndWait(sup, cfg.Process)
	log.Println("Wrapper exited")

	if err := sup.Err(); err != nil {
		return &exitError{code: 1, err: err}
	}
	return groupErr
}

// stopAndWait stops the server if it is still up. A stop or backup already
// in progress is waited out, retrying once a backup has restarted the server.
func stopAndWait(sup *server.Supervisor, p config.ProcessConfig) {
	deadline := time.Now().Add(p.StopTimeout + p.KillGrace + p.ReadyTimeout + time.Minute)
	for {
		err := sup.Stop()
		switch {
		case err == nil, errors.Is(err, server.ErrNotRunning):
			return
		case errors.Is(err, server.ErrAlreadyStopping):
		default:
			logging.L().Error("failed to stop server", "error", err)
			return
		}

		if time.Now().After(deadline) {
			logging.L().Warn("gave up waiting for the server to stop")
			return
		}
		select {
		case <-sup.Terminated():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// prepareTLS returns the certificate pair for HTTPS and gRPC, issuing a
// self-signed one under the data directory when requested. The config is
// left untouched so a saved config keeps asking for renewal.
func prepareTLS(cfg *config.Config) (certFile, keyFile string, err error) {
	tlsCfg := cfg.Server.TLS
	if !tlsCfg.Enabled && !cfg.GRPC.TLS {
		return "", "", nil
	}
	if !tlsCfg.SelfSigned || (tlsCfg.CertFile != "" && tlsCfg.KeyFile != "") {
		return tlsCfg.CertFile, tlsCfg.KeyFile, nil
	}
	certFile, keyFile, err = tlscert.EnsureSelfSigned(
		filepath.Join(cfg.Storage.DataDir, "tls"),
		[]string{cfg.Server.Host, "localhost", "127.0.0.1"},
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to prepare TLS certificate: %w", err)
	}
	return certFile, keyFile, nil
}
