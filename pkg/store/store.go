package store

import (
	"errors"

	"github.com/strataops/strata/pkg/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the shared entity store every control loop communicates through.
// Loops never call each other directly; they observe and mutate state here.
type Store interface {
	// Namespaces
	CreateNamespace(ns *types.Namespace) error
	GetNamespace(name string) (*types.Namespace, error)
	// DeleteNamespace removes the namespace and every entity it owns.
	DeleteNamespace(name string) error

	// Tiers
	CreateTier(tier *types.Tier) error
	GetTier(namespace, name string) (*types.Tier, error)
	ListTiers(namespace string) ([]*types.Tier, error)
	UpdateTier(tier *types.Tier) error
	DeleteTier(namespace, name string) error

	// Instances
	CreateInstance(inst *types.Instance) error
	GetInstance(namespace, id string) (*types.Instance, error)
	ListInstances(namespace string) ([]*types.Instance, error)
	ListInstancesByTier(namespace, tier string) ([]*types.Instance, error)
	UpdateInstance(inst *types.Instance) error
	DeleteInstance(namespace, id string) error

	// Storage claims
	CreateClaim(claim *types.StorageClaim) error
	GetClaim(namespace, id string) (*types.StorageClaim, error)
	GetClaimByName(namespace, name string) (*types.StorageClaim, error)
	ListClaims(namespace string) ([]*types.StorageClaim, error)
	UpdateClaim(claim *types.StorageClaim) error
	DeleteClaim(namespace, id string) error

	// Storage volumes (cluster scoped, they outlive namespaces)
	CreateVolume(vol *types.StorageVolume) error
	GetVolume(id string) (*types.StorageVolume, error)
	GetVolumeByName(name string) (*types.StorageVolume, error)
	ListVolumes() ([]*types.StorageVolume, error)
	UpdateVolume(vol *types.StorageVolume) error
	DeleteVolume(id string) error

	// Credentials
	CreateCredential(cred *types.Credential) error
	GetCredentialByName(namespace, name string) (*types.Credential, error)
	DeleteCredential(namespace, name string) error

	// Service endpoints
	CreateEndpoint(ep *types.ServiceEndpoint) error
	GetEndpoint(namespace, name string) (*types.ServiceEndpoint, error)
	ListEndpoints(namespace string) ([]*types.ServiceEndpoint, error)
	UpdateEndpoint(ep *types.ServiceEndpoint) error
	DeleteEndpoint(namespace, name string) error

	// Topology status
	PutTopologyStatus(status *types.TopologyStatus) error
	GetTopologyStatus(namespace string) (*types.TopologyStatus, error)

	// Utility
	Close() error
}
