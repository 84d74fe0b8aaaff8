package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/moolen/faultline/internal/models"
	"github.com/spf13/cobra"
)

var (
	analyzeTopologyPath string
	analyzeEvidencePath string
	analyzeOutputPath   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a one-shot analysis over an evidence file",
	Long: `Analyze reads a topology definition and an evidence file, runs the
full classification pipeline once, and writes the ranked result list as
JSON to stdout or the given output file.`,
	Run: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTopologyPath, "topology", "topology.yaml", "Path to the YAML topology definition")
	analyzeCmd.Flags().StringVar(&analyzeEvidencePath, "evidence", "evidence.yaml", "Path to the YAML evidence file")
	analyzeCmd.Flags().StringVar(&analyzeOutputPath, "output", "", "Write the report to this file instead of stdout")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	HandleError(err, "Configuration error")

	p, err := buildPipeline(cfg, analyzeTopologyPath)
	HandleError(err, "Initialization error")

	evidence, err := loadEvidence(analyzeEvidencePath)
	HandleError(err, "Evidence error")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report := p.engine.Analyze(ctx, evidence)

	out := os.Stdout
	if analyzeOutputPath != "" {
		f, err := os.Create(analyzeOutputPath)
		HandleError(err, "Output error")
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	HandleError(encoder.Encode(report), "Output error")
}

// evidenceFile is the on-disk shape of an evidence set.
//
// Example:
//
//	evidence:
//	  - device_id: ACC_SW_01
//	    message: "Connection Lost to uplink"
//	    severity: critical
//	    timestamp: 2026-08-30T10:15:00Z
type evidenceFile struct {
	Evidence []evidenceEntry `yaml:"evidence"`
}

type evidenceEntry struct {
	DeviceID  string `yaml:"device_id"`
	Message   string `yaml:"message"`
	Severity  string `yaml:"severity"`
	Timestamp string `yaml:"timestamp"`
}

// loadEvidence reads an evidence file. Timestamps are RFC 3339; absent or
// unparseable timestamps are left at zero rather than failing the run.
func loadEvidence(filepath string) ([]models.Evidence, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(filepath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load evidence from %q: %w", filepath, err)
	}

	var doc evidenceFile
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse evidence from %q: %w", filepath, err)
	}
	if len(doc.Evidence) == 0 {
		return nil, fmt.Errorf("evidence file %q contains no entries", filepath)
	}

	out := make([]models.Evidence, 0, len(doc.Evidence))
	for i, e := range doc.Evidence {
		if e.DeviceID == "" {
			return nil, fmt.Errorf("evidence entry %d in %q has no device_id", i, filepath)
		}
		ts, _ := time.Parse(time.RFC3339, e.Timestamp)
		out = append(out, models.Evidence{
			DeviceID:  e.DeviceID,
			Message:   e.Message,
			Severity:  e.Severity,
			Timestamp: ts,
		})
	}
	return out, nil
}
