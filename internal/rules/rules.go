// Package rules implements the deterministic local classifier: an ordered,
// first-match table of pattern-to-verdict rules evaluated over sanitized
// evidence text and device metadata. Rules perform no I/O, so every device
// resolved here avoids an oracle call.
package rules

import (
	"fmt"
	"strings"

	"github.com/moolen/faultline/internal/models"
)

// Input is the normalized evidence a rule matches against.
type Input struct {
	DeviceID string

	// Messages are the sanitized evidence messages for the device
	Messages []string

	// Joined is the lowercased concatenation of Messages
	Joined string

	// PSUCount is the device's power supply count (1 when unknown)
	PSUCount int
}

// NewInput builds a rule input from raw evidence messages.
func NewInput(deviceID string, messages []string, psuCount int) Input {
	sanitized := make([]string, len(messages))
	for i, m := range messages {
		sanitized[i] = Sanitize(m)
	}
	return Input{
		DeviceID: deviceID,
		Messages: sanitized,
		Joined:   strings.ToLower(strings.Join(sanitized, " ")),
		PSUCount: psuCount,
	}
}

// Verdict is the outcome of a matched rule.
type Verdict struct {
	Status     models.Status
	Reason     string
	ImpactType string
	Confidence float64
}

// Rule pairs a name with a pure predicate-and-verdict function.
// Apply returns the verdict and true when the rule matches.
type Rule struct {
	Name  string
	Apply func(Input) (Verdict, bool)
}

// hardFailPatterns are literals that indicate the device is conclusively
// down, overriding any co-occurring lower-severity evidence.
var hardFailPatterns = []struct {
	pattern string
	reason  string
}{
	{"power supply: dual loss", "Device down / dual PSU loss detected"},
	{"dual loss", "Dual power loss detected"},
	{"device down", "Device is completely down"},
	{"thermal shutdown", "Thermal shutdown - device offline"},
}

// DefaultRules returns the built-in rule table in precedence order.
// Order is significant: only the first matching rule applies.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "hard-fail", Apply: applyHardFail},
		{Name: "psu-single", Apply: applySinglePSU},
		{Name: "fan", Apply: applyFan},
		{Name: "memory", Apply: applyMemory},
		{Name: "link-down", Apply: applyLinkDown},
		{Name: "bgp", Apply: applyBGP},
	}
}

func applyHardFail(in Input) (Verdict, bool) {
	for _, p := range hardFailPatterns {
		if strings.Contains(in.Joined, p.pattern) {
			return Verdict{
				Status:     models.StatusCritical,
				Reason:     p.reason + " (local safety rule).",
				ImpactType: "Hardware/Physical",
				Confidence: 0.95,
			}, true
		}
	}
	return Verdict{}, false
}

func applySinglePSU(in Input) (Verdict, bool) {
	psuFail := (strings.Contains(in.Joined, "power supply") && strings.Contains(in.Joined, "failed")) ||
		(strings.Contains(in.Joined, "psu") && strings.Contains(in.Joined, "fail"))
	if !psuFail || strings.Contains(in.Joined, "dual") {
		return Verdict{}, false
	}

	if in.PSUCount >= 2 {
		return Verdict{
			Status:     models.StatusWarning,
			Reason:     fmt.Sprintf("Single PSU failure with redundancy (psu_count=%d) (local safety rule).", in.PSUCount),
			ImpactType: "Hardware/Redundancy",
			Confidence: 0.9,
		}, true
	}
	return Verdict{
		Status:     models.StatusCritical,
		Reason:     fmt.Sprintf("Single PSU failure without redundancy (psu_count=%d) (local safety rule).", in.PSUCount),
		ImpactType: "Hardware/Physical",
		Confidence: 0.9,
	}, true
}

func applyFan(in Input) (Verdict, bool) {
	fanFail := strings.Contains(in.Joined, "fan fail") ||
		(strings.Contains(in.Joined, "fan") && strings.Contains(in.Joined, "fail"))
	if !fanFail {
		return Verdict{}, false
	}

	overheat := strings.Contains(in.Joined, "high temperature") ||
		strings.Contains(in.Joined, "overheat") ||
		strings.Contains(in.Joined, "thermal")
	if overheat {
		return Verdict{
			Status:     models.StatusCritical,
			Reason:     "Fan failure with overheat/thermal symptom detected (local safety rule).",
			ImpactType: "Hardware/Physical",
			Confidence: 0.9,
		}, true
	}
	return Verdict{
		Status:     models.StatusWarning,
		Reason:     "Fan failure detected. Service likely continues but risk of thermal escalation (local safety rule).",
		ImpactType: "Hardware/Degraded",
		Confidence: 0.85,
	}, true
}

func applyMemory(in Input) (Verdict, bool) {
	memSymptom := strings.Contains(in.Joined, "memory high") ||
		strings.Contains(in.Joined, "memory leak")
	if !memSymptom {
		return Verdict{}, false
	}

	oom := strings.Contains(in.Joined, "out of memory") ||
		strings.Contains(in.Joined, "oom") ||
		strings.Contains(in.Joined, "killed process")
	if oom {
		return Verdict{
			Status:     models.StatusCritical,
			Reason:     "Memory leak/high with OOM/crash symptom detected (local safety rule).",
			ImpactType: "Software/Resource",
			Confidence: 0.9,
		}, true
	}
	return Verdict{
		Status:     models.StatusWarning,
		Reason:     "Memory high/leak symptom detected. Likely degraded but not down yet (local safety rule).",
		ImpactType: "Software/Resource",
		Confidence: 0.8,
	}, true
}

func applyLinkDown(in Input) (Verdict, bool) {
	if !strings.Contains(in.Joined, "interface down") && !strings.Contains(in.Joined, "link down") {
		return Verdict{}, false
	}
	return Verdict{
		Status:     models.StatusWarning,
		Reason:     "Interface/Link down detected (local rule).",
		ImpactType: "Network/LinkDown",
		Confidence: 0.85,
	}, true
}

func applyBGP(in Input) (Verdict, bool) {
	if !strings.Contains(in.Joined, "bgp flapping") && !strings.Contains(in.Joined, "bgp peer down") {
		return Verdict{}, false
	}
	return Verdict{
		Status:     models.StatusWarning,
		Reason:     "BGP instability detected (local rule).",
		ImpactType: "Network/BGP",
		Confidence: 0.85,
	}, true
}
