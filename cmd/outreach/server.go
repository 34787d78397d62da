package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/outreach/internal/api"
	"github.com/kalambet/outreach/internal/composer"
	"github.com/kalambet/outreach/internal/config"
	"github.com/kalambet/outreach/internal/engine"
	"github.com/kalambet/outreach/internal/events"
	"github.com/kalambet/outreach/internal/notify"
	"github.com/kalambet/outreach/internal/sequence"
	"github.com/kalambet/outreach/internal/triage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler, reply triage and management API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcp, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcp)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running outreach process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

func init() {
	runCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
	rootCmd.AddCommand(stopCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "outreach.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(stderr, "outreach version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Require("mail.address", "mail.password", "research.serper_api_key"); err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 2*time.Second)
	running := newAPIClient(cfg).healthy(probeCtx)
	cancelProbe()
	if running {
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("outreach already running (PID %d)", pid)
		}
		return fmt.Errorf("outreach already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := detectEngine(cfg)
	if err != nil {
		return err
	}
	if err := engine.EnsureReady(ctx, eng, []string{cfg.LLM.FastModel, cfg.LLM.DeepModel}, stderr); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	catalog, seqID, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	pub, err := events.Open(cfg.Events.AMQPURL, cfg.Events.Exchange, slog.Default())
	if err != nil {
		return fmt.Errorf("opening event publisher: %w", err)
	}
	defer pub.Close()

	clock := sequence.RealClock()
	mailer := newMailer(cfg)
	enroller := sequence.NewEnroller(store, clock)
	executor := sequence.NewExecutor(sequence.ExecutorDeps{
		Store:      store,
		Catalog:    catalog,
		Researcher: newResearcher(cfg, eng),
		Writer:     composer.New(eng, cfg.LLM.DeepModel, senderOf(cfg)),
		Mailer:     mailer,
		Sender:     senderOf(cfg),
		Clock:      clock,
		Events:     pub,
		Logger:     slog.Default().With("component", "executor"),
	})
	scheduler := sequence.NewScheduler(store, executor, clock, sequence.SchedulerConfig{
		PollInterval: cfg.Sequence.PollInterval,
		PacingDelay:  cfg.Sequence.PacingDelay,
		ErrorBackoff: cfg.Sequence.ErrorBackoff,
	})

	classifier := triage.NewClassifier(eng, cfg.LLM.FastModel)
	inbox := triage.NewIMAPInbox(triage.IMAPConfig{
		Host:     cfg.Mail.IMAPHost,
		Port:     cfg.Mail.IMAPPort,
		Username: cfg.Mail.Address,
		Password: cfg.Mail.Password,
	})
	triager := triage.New(inbox, store, classifier, pub, triage.Config{
		CheckLimit:   cfg.Replies.CheckLimit,
		PollInterval: cfg.Replies.PollInterval,
	})
	notifier := notify.NewWorker(store, mailer, cfg.NotifyTo(), 0)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { scheduler.Run(gctx); return nil })
	g.Go(func() error { triager.Run(gctx); return nil })
	g.Go(func() error { notifier.Run(gctx); return nil })
	slog.Info("scheduler started", "sequence_id", seqID, "poll_interval", cfg.Sequence.PollInterval)

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:           store,
			Enroller:        enroller,
			Sequences:       catalog,
			DefaultSequence: seqID,
			Classifier:      classifier,
		}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.Server.APIToken == "" {
		printWarning("management API disabled: set OUTREACH_API_TOKEN to enable it")
	} else {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
		srv = &http.Server{
			Addr: addr,
			Handler: api.NewAppHandler(api.AppDeps{
				Store:           store,
				Enroller:        enroller,
				Sequences:       catalog,
				DefaultSequence: seqID,
				Token:           cfg.Server.APIToken,
			}),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}
		go func() {
			slog.Info("management API listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		fmt.Fprintln(stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
		stop()
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}
	g.Wait()
	return runErr
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("outreach is not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("stopping outreach (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to outreach (PID %d)", pid)
	return nil
}
