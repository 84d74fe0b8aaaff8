package commands

import (
	"fmt"
	"os"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/dispatch"
	"github.com/moolen/faultline/internal/engine"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/metrics"
	"github.com/moolen/faultline/internal/oracle"
	"github.com/moolen/faultline/internal/ratelimit"
	"github.com/moolen/faultline/internal/rules"
	"github.com/moolen/faultline/internal/topology"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "Faultline - topology-aware root cause analysis for device faults",
	Long: `Faultline ingests fault evidence from a monitored device topology and
produces a ranked list of root-cause candidates. It suppresses cascade
noise via the topology graph, resolves deterministic cases with local
rules, and batches the remainder to an external classification oracle
under a strict request quota.`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serverCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// pipeline bundles the constructed analysis components.
type pipeline struct {
	graph    *topology.Graph
	engine   *engine.Engine
	limiter  *ratelimit.Limiter
	cache    *ratelimit.Cache
	registry *prometheus.Registry
}

// buildPipeline wires the full analysis stack from configuration: topology
// graph, rule classifier, rate limiter, cache, oracle client, dispatcher,
// and engine.
func buildPipeline(cfg *config.Config, topologyPath string) (*pipeline, error) {
	logger := logging.GetLogger("main")

	graph, err := topology.LoadFile(topologyPath)
	if err != nil {
		return nil, err
	}
	logger.Info("topology loaded: %d devices", graph.Len())

	classifier, err := rules.NewClassifier(cfg.Rules.Precedence)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	cache, err := ratelimit.NewCache(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var client oracle.Client
	if key := cfg.Credential(); key != "" {
		client = oracle.NewAnthropicClient(key, cfg.Oracle)
		logger.Info("oracle client configured with model %s", cfg.Oracle.Model)
	} else {
		logger.Warn("no oracle credential found, running in rule-only degraded mode")
	}

	dispatcher := dispatch.New(client, limiter, cache, cfg, m)
	eng := engine.New(graph, classifier, dispatcher, cfg, m)

	return &pipeline{
		graph:    graph,
		engine:   eng,
		limiter:  limiter,
		cache:    cache,
		registry: registry,
	}, nil
}
