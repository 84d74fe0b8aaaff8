package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moolen/faultline/internal/apiserver"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/tracing"
	"github.com/spf13/cobra"
)

var (
	serverTopologyPath string
	serverAPIPort      int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Faultline API server",
	Long: `Start the Faultline server which accepts evidence over HTTP, runs the
classification pipeline, and serves results, budget stats, and metrics.`,
	Run: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&serverTopologyPath, "topology", "topology.yaml", "Path to the YAML topology definition")
	serverCmd.Flags().IntVar(&serverAPIPort, "api-port", 0, "Port the API server listens on; overrides config")
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	HandleError(err, "Configuration error")
	if serverAPIPort != 0 {
		cfg.APIPort = serverAPIPort
	}

	logger := logging.GetLogger("main")
	logger.Info("starting faultline v%s", Version)

	tracingProvider, err := tracing.NewProvider(cfg.Tracing, Version)
	HandleError(err, "Tracing error")

	p, err := buildPipeline(cfg, serverTopologyPath)
	HandleError(err, "Initialization error")

	server := apiserver.New(cfg.APIPort, p.engine, p.limiter, p.cache, p.registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		HandleError(err, "Server error")
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping API server: %v", err)
	}
	if err := tracingProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("error stopping tracing: %v", err)
	}
	logger.Info("shutdown complete")
}
