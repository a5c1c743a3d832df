package topology

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/strataops/strata/pkg/types"
	"gopkg.in/yaml.v3"
)

const (
	// APIVersion is the manifest schema version this controller accepts.
	APIVersion = "strata.dev/v1"
	// KindTopology is the only resource kind the controller provisions.
	KindTopology = "Topology"
)

// Manifest is the declared topology input: the only persisted configuration
// surface, loaded once at startup and diffed against observed state on
// every reconciliation tick.
type Manifest struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   Metadata   `yaml:"metadata"`
	Tiers      []TierSpec `yaml:"tiers"`
	Credential Credential `yaml:"credential"`
}

// Metadata names the namespace the topology owns.
type Metadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// TierSpec declares one tier of the topology.
type TierSpec struct {
	Name             string       `yaml:"name"`
	Kind             string       `yaml:"kind"`
	Image            string       `yaml:"image"`
	Replicas         int          `yaml:"replicas"`
	Port             int          `yaml:"port"`
	DependsOn        []string     `yaml:"dependsOn,omitempty"`
	SecretRequired   bool         `yaml:"secretRequired,omitempty"`
	ExposeExternally bool         `yaml:"exposeExternally,omitempty"`
	ExternalPort     int          `yaml:"externalPort,omitempty"`
	Storage          *StorageSpec `yaml:"storage,omitempty"`
}

// StorageSpec declares the persistent storage requirement of a tier.
type StorageSpec struct {
	Capacity   string `yaml:"capacity"`
	AccessMode string `yaml:"accessMode"`
	// Required defaults to true: the tier never starts without bound
	// storage. Opting out is an explicit manifest decision.
	Required *bool `yaml:"required,omitempty"`
}

// Credential names the shared secret the topology propagates.
type Credential struct {
	Name string `yaml:"name"`
	// Value is optional; when empty the controller generates one.
	Value string `yaml:"value,omitempty"`
}

// Load reads and validates a topology manifest from disk. Any validation
// error here is fatal to startup: no loop starts on malformed input.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate enforces the fixed three-tier shape and per-tier invariants.
func (m *Manifest) Validate() error {
	if m.APIVersion != APIVersion {
		return fmt.Errorf("unsupported apiVersion %q, want %q", m.APIVersion, APIVersion)
	}
	if m.Kind != KindTopology {
		return fmt.Errorf("unsupported kind %q, want %q", m.Kind, KindTopology)
	}
	if m.Metadata.Name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if len(m.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}

	seen := map[string]bool{}
	kinds := map[types.TierKind]int{}
	secretUsed := false
	for i := range m.Tiers {
		t := &m.Tiers[i]
		if t.Name == "" {
			return fmt.Errorf("tier[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tier %q declared twice", t.Name)
		}
		seen[t.Name] = true

		kind := types.TierKind(t.Kind)
		switch kind {
		case types.TierKindProxy, types.TierKindBackend, types.TierKindDatabase:
			kinds[kind]++
		default:
			return fmt.Errorf("tier %q: unknown kind %q", t.Name, t.Kind)
		}
		if t.Image == "" {
			return fmt.Errorf("tier %q: image is required", t.Name)
		}
		if t.Replicas < 0 {
			return fmt.Errorf("tier %q: replicas must be >= 0", t.Name)
		}
		if t.Port <= 0 || t.Port > 65535 {
			return fmt.Errorf("tier %q: port %d out of range", t.Name, t.Port)
		}
		if t.ExternalPort != 0 && !t.ExposeExternally {
			return fmt.Errorf("tier %q: externalPort set without exposeExternally", t.Name)
		}
		if t.ExternalPort < 0 || t.ExternalPort > 65535 {
			return fmt.Errorf("tier %q: externalPort %d out of range", t.Name, t.ExternalPort)
		}

		// The database tier has exactly one storage requirement; the
		// stateless tiers have none.
		if kind == types.TierKindDatabase {
			if t.Storage == nil {
				return fmt.Errorf("tier %q: database tier requires a storage requirement", t.Name)
			}
			if _, err := ParseCapacity(t.Storage.Capacity); err != nil {
				return fmt.Errorf("tier %q: %w", t.Name, err)
			}
			if _, err := ParseAccessMode(t.Storage.AccessMode); err != nil {
				return fmt.Errorf("tier %q: %w", t.Name, err)
			}
		} else if t.Storage != nil {
			return fmt.Errorf("tier %q: only the database tier may declare storage", t.Name)
		}
		if t.SecretRequired {
			secretUsed = true
		}
	}

	for i := range m.Tiers {
		for _, dep := range m.Tiers[i].DependsOn {
			if !seen[dep] {
				return fmt.Errorf("tier %q: depends on unknown tier %q", m.Tiers[i].Name, dep)
			}
		}
	}

	if secretUsed && m.Credential.Name == "" {
		return fmt.Errorf("credential.name is required when a tier sets secretRequired")
	}
	return nil
}

// TierEntities converts the manifest into stored tier entities.
func (m *Manifest) TierEntities() []*types.Tier {
	now := time.Now()
	tiers := make([]*types.Tier, 0, len(m.Tiers))
	for i := range m.Tiers {
		t := &m.Tiers[i]
		tier := &types.Tier{
			Name:             t.Name,
			Namespace:        m.Metadata.Name,
			Kind:             types.TierKind(t.Kind),
			Image:            t.Image,
			DesiredReplicas:  t.Replicas,
			Port:             t.Port,
			DependsOn:        t.DependsOn,
			SecretRequired:   t.SecretRequired,
			ExposeExternally: t.ExposeExternally,
			ExternalPort:     t.ExternalPort,
			CreatedAt:        now,
		}
		if t.Storage != nil {
			capacity, _ := ParseCapacity(t.Storage.Capacity)
			mode, _ := ParseAccessMode(t.Storage.AccessMode)
			required := true
			if t.Storage.Required != nil {
				required = *t.Storage.Required
			}
			tier.Storage = &types.StorageRequirement{
				CapacityBytes: capacity,
				AccessMode:    mode,
				Required:      required,
			}
		}
		tiers = append(tiers, tier)
	}
	return tiers
}

var capacityUnits = map[string]int64{
	"":   1,
	"Ki": 1 << 10,
	"Mi": 1 << 20,
	"Gi": 1 << 30,
	"Ti": 1 << 40,
}

// ParseCapacity parses a capacity string like "512Mi" or "1Gi" into bytes.
func ParseCapacity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("storage capacity is required")
	}
	num := s
	unit := ""
	for u := range capacityUnits {
		if u != "" && strings.HasSuffix(s, u) {
			num = strings.TrimSuffix(s, u)
			unit = u
			break
		}
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid storage capacity %q", s)
	}
	return n * capacityUnits[unit], nil
}

// ParseAccessMode parses an access mode string like "ReadWriteMany".
func ParseAccessMode(s string) (types.AccessMode, error) {
	switch types.AccessMode(s) {
	case types.AccessModeReadWriteOnce, types.AccessModeReadOnlyMany, types.AccessModeReadWriteMany:
		return types.AccessMode(s), nil
	default:
		return "", fmt.Errorf("unknown access mode %q", s)
	}
}
