package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gharra/filed/internal/dispatcher"
	"github.com/gharra/filed/internal/filestore"
	"github.com/gharra/filed/internal/logger"
	"github.com/gharra/filed/internal/metrics"
	"github.com/gharra/filed/internal/server"
	"github.com/gharra/filed/internal/store"
	"github.com/gharra/filed/internal/store/badger"
	"github.com/gharra/filed/internal/store/memory"
	"github.com/gharra/filed/internal/store/postgres"
	"github.com/gharra/filed/internal/store/sqlite"
	"github.com/gharra/filed/pkg/config"
)

const portInfoPath = "port.info"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the filed server",
	Long: `Start the filed server with the configuration loaded from
--config (or, absent that, environment variables and built-in defaults),
listening on the port named by port.info in the working directory.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().String("storage.backend", "", "persistent-state backend: memory, badger, sqlite, postgres")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile(), cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config(cfg.Logging)); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	port := config.ReadPort(portInfoPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage backend %q: %w", cfg.Storage.Backend, err)
	}
	defer closeStore()

	logStartupSummary(ctx, s)

	files := filestore.New(cfg.DataDir)

	var m *metrics.Metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: m.Handler()}
		go func() {
			logger.Info("metrics server listening", "address", cfg.Metrics.Listen)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", logger.Err(err))
			}
		}()
	}

	d := dispatcher.New(s, files, m)
	srv := server.New(net.JoinHostPort("localhost", strconv.Itoa(port)), d, int(cfg.MaxFragmentSize), m)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("filed is running", "port", port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, draining connections")
		cancel()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer stopCancel()
		if err := srv.Stop(stopCtx); err != nil {
			logger.Warn("shutdown timed out waiting for connections to drain", logger.Err(err))
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}

	logger.Info("filed stopped")
	return nil
}

// logStartupSummary logs row counts for the clients and files tables after
// the persistent-state backend is opened, and at debug level one record
// per row.
func logStartupSummary(ctx context.Context, s store.Store) {
	clients, files, err := s.Stats(ctx)
	if err != nil {
		logger.Warn("could not read startup row counts", logger.Err(err))
		return
	}
	logger.Info("loaded persistent state", "clients", clients, "files", files)

	if !logger.DebugEnabled() {
		return
	}

	clientRows, err := s.ListClients(ctx)
	if err != nil {
		logger.Warn("could not list clients for startup dump", logger.Err(err))
	}
	for _, c := range clientRows {
		logger.Debug("client row", logger.ClientID(c.IDHex), "name", c.Name, "last_seen", c.LastSeen)
	}

	fileRows, err := s.ListFiles(ctx)
	if err != nil {
		logger.Warn("could not list files for startup dump", logger.Err(err))
	}
	for _, f := range fileRows {
		logger.Debug("file row", logger.ClientID(f.ClientIDHex), logger.Filename(f.Name),
			logger.Path(f.Path), "verified", f.Verified)
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case "memory", "":
		return memory.New(), noop, nil
	case "badger":
		s, err := badger.Open(cfg.Badger.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
