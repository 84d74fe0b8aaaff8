// Package topology provides an immutable view of the monitored device
// topology: devices, parent/child uplinks, and redundancy groupings.
//
// The topology is loaded once at startup and is read-only afterwards, so it
// requires no synchronization.
package topology

// Node represents a single monitored device.
type Node struct {
	// ID is the unique device identifier (e.g., "WAN_ROUTER_01")
	ID string `yaml:"id" json:"id"`

	// Type is the device class (router, firewall, switch, ap, ...)
	Type string `yaml:"type" json:"type"`

	// Layer is the integer depth in the topology (0 = top)
	Layer int `yaml:"layer" json:"layer"`

	// ParentID references the upstream device. Empty for roots.
	// Parent references form a forest, never a cycle.
	ParentID string `yaml:"parent_id" json:"parent_id,omitempty"`

	// RedundancyGroup tags devices that back each other up (optional)
	RedundancyGroup string `yaml:"redundancy_group" json:"redundancy_group,omitempty"`

	// Metadata holds per-device attributes used by classification rules
	Metadata Metadata `yaml:"metadata" json:"metadata"`
}

// Metadata holds device attributes referenced by local classification rules.
type Metadata struct {
	// PSUCount is the number of installed power supplies. Zero means
	// unknown; rules treat unknown as a single, non-redundant PSU.
	PSUCount int `yaml:"psu_count" json:"psu_count,omitempty"`

	Vendor string `yaml:"vendor" json:"vendor,omitempty"`
	OS     string `yaml:"os" json:"os,omitempty"`

	// Extra holds free-form attributes passed through to the oracle
	Extra map[string]string `yaml:"extra" json:"extra,omitempty"`
}
