package oracle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z]*\n?")
	fenceClose = regexp.MustCompile("\n?```$")
)

// stripCodeFence removes a surrounding markdown code fence if present.
// Models occasionally wrap output in one despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ParseVerdicts extracts device verdicts from raw model output. It
// tolerates code fences and mildly malformed JSON by attempting a repair
// pass before giving up. Status values are normalized; GREEN/YELLOW/RED
// map to NORMAL/WARNING/CRITICAL, anything unrecognized is treated as
// CRITICAL so surprises surface rather than disappear.
func ParseVerdicts(raw string) ([]DeviceVerdict, error) {
	text := stripCodeFence(raw)

	var items []DeviceVerdict
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return nil, fmt.Errorf("json repair failed: %w (input: %.200s)", rerr, text)
		}
		if err := json.Unmarshal([]byte(repaired), &items); err != nil {
			return nil, fmt.Errorf("unmarshal failed after repair: %w", err)
		}
	}

	out := make([]DeviceVerdict, 0, len(items))
	for _, item := range items {
		if item.DeviceID == "" {
			continue
		}
		out = append(out, DeviceVerdict{
			DeviceID:   item.DeviceID,
			Status:     NormalizeStatus(item.Status),
			Reason:     defaultString(item.Reason, "No reason provided."),
			ImpactType: defaultString(item.ImpactType, "UNKNOWN"),
		})
	}
	return out, nil
}

// NormalizeStatus maps legacy color names and casing variants onto the
// canonical status vocabulary.
func NormalizeStatus(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GREEN", "NORMAL":
		return "NORMAL"
	case "YELLOW", "WARNING":
		return "WARNING"
	default:
		return "CRITICAL"
	}
}

func defaultString(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
