package topology

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// topologyFile is the on-disk shape of a topology definition.
//
// Example:
//
//	devices:
//	  - id: WAN_ROUTER_01
//	    type: router
//	    layer: 0
//	    metadata:
//	      psu_count: 2
//	  - id: FW_01_PRIMARY
//	    type: firewall
//	    layer: 1
//	    parent_id: WAN_ROUTER_01
type topologyFile struct {
	Devices []Node `yaml:"devices"`
}

// LoadFile reads a topology definition from a YAML file and builds the
// graph. Integrity violations (duplicate ids, orphaned parents, cycles)
// are returned as *IntegrityError and are fatal for callers.
func LoadFile(filepath string) (*Graph, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(filepath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load topology from %q: %w", filepath, err)
	}

	var doc topologyFile
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse topology from %q: %w", filepath, err)
	}

	if len(doc.Devices) == 0 {
		return nil, fmt.Errorf("topology file %q contains no devices", filepath)
	}

	g, err := NewGraph(doc.Devices)
	if err != nil {
		return nil, fmt.Errorf("topology %q is invalid: %w", filepath, err)
	}

	return g, nil
}
