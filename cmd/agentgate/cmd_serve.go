package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/agentgate/internal/agent"
	"github.com/user/agentgate/internal/assemble"
	"github.com/user/agentgate/internal/normalize"
	"github.com/user/agentgate/internal/scheduler"
	"github.com/user/agentgate/internal/server"
	"github.com/user/agentgate/internal/session"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentgate daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "agentgate.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Conversation store
	sessions := session.NewManager(cfg.SessionTTL(), slog.Default())

	// Runtime invoker
	invoker := agent.NewCLIInvoker(agent.CLIConfig{
		Bin:      cfg.Agent.Bin,
		Args:     cfg.Agent.Args,
		APIKey:   cfg.Agent.APIKey,
		WorkDir:  cfg.Agent.WorkDir,
		MaxTurns: cfg.Agent.MaxTurns,
		Timeout:  cfg.AgentTimeout(),
	}, slog.Default())

	// Request pipeline
	normalizer := normalize.New(sessions, cfg.Models, slog.Default())
	estimator, err := assemble.NewEstimator("gpt-4")
	if err != nil {
		return fmt.Errorf("create token estimator: %w", err)
	}
	assembler := assemble.New(estimator, slog.Default())

	srv := server.New(cfg, sessions, normalizer, invoker, assembler, slog.Default())

	// Background session sweep
	sched := scheduler.New()
	sched.Add(scheduler.Job{
		Name:     "session-sweep",
		Schedule: cfg.SweepSchedule,
		Run: func() {
			sessions.ExpireSweep(time.Now())
		},
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	slog.Info("agentgate started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"listen", cfg.Listen,
		"max_concurrent", cfg.MaxConcurrent,
		"session_ttl_seconds", cfg.SessionTTLSeconds,
		"agent_bin", cfg.Agent.Bin,
		"auth_enabled", cfg.APIKey != "",
		"pid_file", pidPath,
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-serveErr:
			return err
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				// Clean up PID file before re-exec
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					// Re-write PID file since we failed to re-exec
					if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
					continue
				}
			}
			// SIGINT or SIGTERM
			slog.Info("shutting down", "signal", sig)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := srv.Shutdown(shutdownCtx)
			cancel()
			return err
		}
	}
}
