package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pairlink/core/config"
	"github.com/pairlink/core/internal/credstore"
	"github.com/pairlink/core/internal/daemon/pidfile"
	"github.com/pairlink/core/internal/notify"
	"github.com/pairlink/core/internal/orchestrator"
	"github.com/pairlink/core/internal/protocol"
	"github.com/pairlink/core/internal/registry"
	"github.com/pairlink/core/internal/server"
	"github.com/pairlink/core/internal/sweeper"
	"github.com/pairlink/core/logging"
	"github.com/pairlink/core/pkg/paths"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewDaemonCmd returns the pairlinkd daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the pairlink daemon",
		Long:  "The daemon owns every live protocol connection and runs the background cleanup sweeps.",
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the pairlink daemon in foreground mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.Apply(cfg.Logging)

			logger := logging.NewLogger("pairlinkd")
			pidPath := paths.PidFilePath()
			sockPath := paths.SocketPath()

			// 1. Acquire lock
			if err := pidfile.Acquire(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			// 2. Wire components
			reg := registry.New(cfg.RegistryPath())
			creds := credstore.New(cfg.CredentialsDir(), logging.NewLogger("credstore"))
			logger.WithFields(logrus.Fields{
				"registry":    cfg.RegistryPath(),
				"credentials": creds.Root(),
			}).Info("Data directories resolved")
			hub := notify.NewHub()
			orch := orchestrator.New(cfg, protocol.NewLoopbackDialer(), reg, creds, hub)
			sweeps := sweeper.New(cfg, reg, creds, orch)

			srv := server.New(cfg, orch, reg, creds, hub)
			srv.SetRunningConfig(&server.RunningConfig{
				MaxSessions:       cfg.MaxSessions,
				QRTimeout:         cfg.QRTimeout.Duration,
				PairingTimeout:    cfg.PairingTimeout.Duration,
				ExpiredInterval:   cfg.Sweeps.ExpiredInterval.Duration,
				OrphanInterval:    cfg.Sweeps.OrphanInterval.Duration,
				InvalidInterval:   cfg.Sweeps.InvalidInterval.Duration,
				UnscannedInterval: cfg.Sweeps.UnscannedInterval.Duration,
				StartedAt:         time.Now().UTC(),
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// 3. Hot-reload logging settings on config change. Everything
			// else requires a restart.
			if cfgPath != "" {
				if _, err := os.Stat(cfgPath); err == nil {
					watcher, err := config.NewWatcher(cfgPath, 250, logger, func(newCfg *config.Config) {
						logging.Apply(newCfg.Logging)
					})
					if err != nil {
						logger.WithError(err).Warn("Config watcher unavailable")
					} else {
						go watcher.Start(ctx)
					}
				}
			}

			// 4. Handle signals
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-stop
				logger.Info("Received stop signal")
				cancel()

				// Live sockets close, but records and credentials stay: the
				// next start resumes from the registry.
				orch.Shutdown()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}

				_ = pidfile.Release(pidPath)
				os.Exit(0)
			}()

			// 5. Start sweeps in background
			go sweeps.Run(ctx)

			// 6. Start server (blocking)
			logger.WithField("pid", os.Getpid()).Info("Starting daemon")
			if err := srv.ListenAndServe(sockPath); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			if !running {
				fmt.Println("Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}

			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Printf("Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()
			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			if running {
				fmt.Printf("Running (PID: %d)\nSocket: %s\n", pid, paths.SocketPath())
			} else {
				fmt.Println("Stopped")
				os.Exit(1) // Non-zero for stopped state, useful for scripts
			}
			return nil
		},
	}
}

// loadConfig resolves the --config flag or falls back to the standard
// location. The returned path is empty when running on pure defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	cfg, err := config.LoadDefault()
	return cfg, config.DefaultPath(), err
}
