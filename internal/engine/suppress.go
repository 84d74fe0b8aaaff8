package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/topology"
)

// connectionLossMarkers identify connectivity-loss-class evidence. These
// are the symptoms a dead upstream device produces on its children.
var connectionLossMarkers = []string{
	"connection lost",
	"link down",
	"port down",
	"unreachable",
}

func isConnectionLoss(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range connectionLossMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func anyConnectionLoss(msgs []string) bool {
	for _, m := range msgs {
		if isConnectionLoss(m) {
			return true
		}
	}
	return false
}

// Suspect is a parent device inferred as failed purely from its
// children's symptoms.
type Suspect struct {
	ParentID      string
	EvidenceCount int
	TotalChildren int
	Affected      []string
	Report        string
}

// detectSilentFailures flags parents without direct evidence whose
// children collectively report connectivity loss. A parent is suspected
// when at least cfg.MinChildren children are affected and the affected
// fraction reaches cfg.Ratio.
func detectSilentFailures(g *topology.Graph, evidence map[string][]string, cfg config.SuppressionConfig) map[string]Suspect {
	suspects := make(map[string]Suspect)

	for _, parentID := range g.Parents() {
		if _, hasOwn := evidence[parentID]; hasOwn {
			continue
		}

		children := g.Children(parentID)
		var affected []string
		for _, child := range children {
			if anyConnectionLoss(evidence[child]) {
				affected = append(affected, child)
			}
		}
		if len(affected) == 0 {
			continue
		}

		total := len(children)
		ratio := float64(len(affected)) / float64(total)
		if len(affected) < cfg.MinChildren || ratio < cfg.Ratio {
			continue
		}

		sort.Strings(affected)
		suspects[parentID] = Suspect{
			ParentID:      parentID,
			EvidenceCount: len(affected),
			TotalChildren: total,
			Affected:      affected,
			Report:        buildSuspectReport(parentID, affected, total),
		}
	}

	return suspects
}

// buildSuspectReport renders the analyst-facing evidence summary for a
// silent-failure suspect.
func buildSuspectReport(parentID string, affected []string, total int) string {
	return fmt.Sprintf(
		"[Silent Failure Heuristic]\n"+
			"- Suspected upstream device: %s\n"+
			"- Evidence: %d/%d children report connection loss\n"+
			"- Affected children: %s\n"+
			"- Recommendation: Check uplinks, power, and management connectivity\n",
		parentID, len(affected), total, strings.Join(affected, ", "))
}
