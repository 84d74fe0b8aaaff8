package engine

import (
	"testing"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T) *topology.Graph {
	t.Helper()
	g, err := topology.NewGraph([]topology.Node{
		{ID: "core-01", Type: "router", Layer: 0},
		{ID: "dist-01", Type: "switch", Layer: 1, ParentID: "core-01"},
		{ID: "acc-01", Type: "switch", Layer: 2, ParentID: "dist-01"},
		{ID: "acc-02", Type: "switch", Layer: 2, ParentID: "dist-01"},
		{ID: "acc-03", Type: "switch", Layer: 2, ParentID: "dist-01"},
		{ID: "acc-04", Type: "switch", Layer: 2, ParentID: "dist-01"},
	})
	require.NoError(t, err)
	return g
}

func suppressionCfg() config.SuppressionConfig {
	return config.SuppressionConfig{MinChildren: 2, Ratio: 0.5}
}

func TestDetectSilentFailures(t *testing.T) {
	g := testGraph(t)
	evidence := map[string][]string{
		"acc-01": {"Connection Lost to gateway"},
		"acc-02": {"Port Down on uplink"},
	}

	suspects := detectSilentFailures(g, evidence, suppressionCfg())
	require.Len(t, suspects, 1)

	s, ok := suspects["dist-01"]
	require.True(t, ok)
	assert.Equal(t, 2, s.EvidenceCount)
	assert.Equal(t, 4, s.TotalChildren)
	assert.Equal(t, []string{"acc-01", "acc-02"}, s.Affected)
	assert.Contains(t, s.Report, "Suspected upstream device: dist-01")
	assert.Contains(t, s.Report, "2/4 children report connection loss")
	assert.Contains(t, s.Report, "acc-01, acc-02")
}

func TestDetectSilentFailuresParentWithOwnEvidence(t *testing.T) {
	g := testGraph(t)
	evidence := map[string][]string{
		"dist-01": {"Fan Failure detected"},
		"acc-01":  {"Connection Lost"},
		"acc-02":  {"Connection Lost"},
	}

	suspects := detectSilentFailures(g, evidence, suppressionCfg())
	assert.NotContains(t, suspects, "dist-01")
}

func TestDetectSilentFailuresBelowMinChildren(t *testing.T) {
	g := testGraph(t)
	evidence := map[string][]string{
		"acc-01": {"Connection Lost"},
	}

	suspects := detectSilentFailures(g, evidence, suppressionCfg())
	assert.Empty(t, suspects)
}

func TestDetectSilentFailuresBelowRatio(t *testing.T) {
	g := testGraph(t)
	evidence := map[string][]string{
		"acc-01": {"Connection Lost"},
		"acc-02": {"Link Down"},
	}

	// 2 of 4 children meets ratio 0.5 but not 0.75
	cfg := config.SuppressionConfig{MinChildren: 2, Ratio: 0.75}
	suspects := detectSilentFailures(g, evidence, cfg)
	assert.Empty(t, suspects)
}

func TestDetectSilentFailuresIgnoresUnrelatedMessages(t *testing.T) {
	g := testGraph(t)
	evidence := map[string][]string{
		"acc-01": {"High CPU usage"},
		"acc-02": {"Fan Failure"},
	}

	suspects := detectSilentFailures(g, evidence, suppressionCfg())
	assert.Empty(t, suspects)
}

func TestIsConnectionLoss(t *testing.T) {
	assert.True(t, isConnectionLoss("Connection Lost to peer"))
	assert.True(t, isConnectionLoss("Interface Link Down"))
	assert.True(t, isConnectionLoss("PORT DOWN"))
	assert.True(t, isConnectionLoss("host unreachable"))
	assert.False(t, isConnectionLoss("Fan Failure"))
	assert.False(t, isConnectionLoss(""))
}
