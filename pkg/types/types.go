package types

import (
	"time"
)

// Namespace is the isolation boundary that owns every other entity.
// It is created once, never mutated, and destroyed only by explicit teardown.
type Namespace struct {
	Name      string
	CreatedAt time.Time
}

// TierKind identifies one of the three fixed topology layers.
type TierKind string

const (
	TierKindProxy    TierKind = "proxy"
	TierKindBackend  TierKind = "backend"
	TierKindDatabase TierKind = "database"
)

// Tier is one logical service layer with a declared replica count.
type Tier struct {
	Name             string
	Namespace        string
	Kind             TierKind
	Image            string
	DesiredReplicas  int
	Port             int
	DependsOn        []string // tiers this tier must reach by name
	SecretRequired   bool
	Storage          *StorageRequirement // database tier only
	ExposeExternally bool
	ExternalPort     int // 0 = allocate
	CreatedAt        time.Time
}

// StorageRequirement declares the persistent storage a tier needs.
type StorageRequirement struct {
	CapacityBytes int64
	AccessMode    AccessMode
	// Required blocks the Ready transition until the claim is Bound.
	// Defaults to true; a tier that can tolerate running without
	// persistence may opt out in the manifest.
	Required bool
}

// InstanceState represents the lifecycle state of an instance.
type InstanceState string

const (
	InstanceStatePending       InstanceState = "pending"
	InstanceStateSecretPending InstanceState = "secret-pending"
	InstanceStateReady         InstanceState = "ready"
	InstanceStateFailed        InstanceState = "failed"
	InstanceStateTerminating   InstanceState = "terminating"
)

// Instance is a single running unit of a tier. Instances are owned
// exclusively by their tier and created/destroyed by the reconciler.
type Instance struct {
	ID         string
	Tier       string
	Namespace  string
	RuntimeID  string // handle from the runtime boundary
	State      InstanceState
	Address    string
	Port       int
	Error      string
	ExitCode   int
	CreatedAt  time.Time
	ReadyAt    time.Time
	FinishedAt time.Time
}

// Live reports whether the instance still counts toward the replica total.
func (i *Instance) Live() bool {
	return i.State != InstanceStateTerminating && i.State != InstanceStateFailed
}

// AccessMode describes how a volume may be mounted.
type AccessMode string

const (
	AccessModeReadWriteOnce AccessMode = "ReadWriteOnce"
	AccessModeReadOnlyMany  AccessMode = "ReadOnlyMany"
	AccessModeReadWriteMany AccessMode = "ReadWriteMany"
)

// ClaimPhase is the binding state of a storage claim.
type ClaimPhase string

const (
	ClaimPhasePending  ClaimPhase = "pending"
	ClaimPhaseBound    ClaimPhase = "bound"
	ClaimPhaseReleased ClaimPhase = "released"
)

// StorageClaim is a request for persistent storage, bound to at most
// one volume.
type StorageClaim struct {
	ID            string
	Name          string
	Namespace     string
	Tier          string
	CapacityBytes int64
	AccessModes   []AccessMode
	// VolumeName optionally pins the claim to a specific volume.
	VolumeName string
	Phase      ClaimPhase
	VolumeID   string // set while Bound
	CreatedAt  time.Time
}

// VolumeState is the binding state of a storage volume.
type VolumeState string

const (
	VolumeStateAvailable VolumeState = "available"
	VolumeStateBound     VolumeState = "bound"
	// VolumeStateReleased means the owning claim was deleted but the data
	// was retained. The volume needs an administrative reset before it is
	// eligible for re-binding.
	VolumeStateReleased VolumeState = "released"
)

// StorageVolume is the backing resource that satisfies a claim.
// Reclaim policy is always retain: release unbinds, never erases.
type StorageVolume struct {
	ID            string
	Name          string
	CapacityBytes int64
	AccessModes   []AccessMode
	State         VolumeState
	ClaimID       string // owning claim while Bound, last owner while Released
	Path          string // host path from the storage provider
	CreatedAt     time.Time
}

// HasAccessModes reports whether the volume's modes are a superset of want.
func (v *StorageVolume) HasAccessModes(want []AccessMode) bool {
	for _, w := range want {
		found := false
		for _, m := range v.AccessModes {
			if m == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Credential is an opaque secret payload, stored once per namespace and
// immutable for the lifetime of the topology. Data is sealed at rest.
type Credential struct {
	ID        string
	Name      string
	Namespace string
	Data      []byte // AES-256-GCM sealed
	CreatedAt time.Time
}

// EndpointVisibility controls who can reach a service endpoint.
type EndpointVisibility string

const (
	VisibilityInternal EndpointVisibility = "internal"
	VisibilityExternal EndpointVisibility = "external"
)

// ServiceEndpoint maps a stable name + port to the Ready instances of one
// tier. Membership is derived from instance state at resolve time, never
// stored. External endpoints hold a node-level port that is allocated once
// and never reassigned while the endpoint exists.
type ServiceEndpoint struct {
	Name       string
	Namespace  string
	Tier       string
	Port       int
	Visibility EndpointVisibility
	NodePort   int // external only
	CreatedAt  time.Time
}

// TopologyPhase is the coordinator's view of the whole topology.
type TopologyPhase string

const (
	PhaseProvisioning TopologyPhase = "provisioning"
	PhaseStorageBound TopologyPhase = "storage-bound"
	PhaseSecretsReady TopologyPhase = "secrets-ready"
	PhaseServing      TopologyPhase = "serving"
	PhaseDegraded     TopologyPhase = "degraded"
	PhaseTearingDown  TopologyPhase = "tearing-down"
	PhaseDown         TopologyPhase = "down"
)

// TierStatus is the per-tier convergence report surfaced upward.
type TierStatus struct {
	Tier     string
	Desired  int
	Ready    int
	Failed   int
	Degraded bool
	Message  string
}

// TopologyStatus is the aggregated status polled by the operator surface.
type TopologyStatus struct {
	Namespace string
	Phase     TopologyPhase
	Tiers     []TierStatus
	UpdatedAt time.Time
}
