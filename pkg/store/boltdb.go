package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/strataops/strata/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketNamespaces  = []byte("namespaces")
	bucketTiers       = []byte("tiers")
	bucketInstances   = []byte("instances")
	bucketClaims      = []byte("claims")
	bucketVolumes     = []byte("volumes")
	bucketCredentials = []byte("credentials")
	bucketEndpoints   = []byte("endpoints")
	bucketStatus      = []byte("status")
)

// BoltStore implements Store using BoltDB. Namespaced entities are keyed
// "<namespace>/<id>" so a namespace teardown is a prefix scan.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the controller database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "strata.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNamespaces,
			bucketTiers,
			bucketInstances,
			bucketClaims,
			bucketVolumes,
			bucketCredentials,
			bucketEndpoints,
			bucketStatus,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func nsKey(namespace, id string) []byte {
	return []byte(namespace + "/" + id)
}

// put marshals v as JSON under key in bucket (upsert).
func (s *BoltStore) put(bucket, key []byte, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// get unmarshals the value under key in bucket into v.
func (s *BoltStore) get(bucket, key []byte, v any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("%s %q: %w", bucket, key, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

func (s *BoltStore) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// forEachPrefix visits every value whose key starts with prefix. An empty
// prefix visits the whole bucket.
func (s *BoltStore) forEachPrefix(bucket []byte, prefix string, fn func(v []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if prefix != "" && !strings.HasPrefix(string(k), prefix) {
				continue
			}
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Namespace operations

func (s *BoltStore) CreateNamespace(ns *types.Namespace) error {
	return s.put(bucketNamespaces, []byte(ns.Name), ns)
}

func (s *BoltStore) GetNamespace(name string) (*types.Namespace, error) {
	var ns types.Namespace
	if err := s.get(bucketNamespaces, []byte(name), &ns); err != nil {
		return nil, err
	}
	return &ns, nil
}

func (s *BoltStore) DeleteNamespace(name string) error {
	prefix := []byte(name + "/")
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			bucketTiers, bucketInstances, bucketClaims,
			bucketCredentials, bucketEndpoints,
		} {
			c := tx.Bucket(bucket).Cursor()
			for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		if err := tx.Bucket(bucketStatus).Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketNamespaces).Delete([]byte(name))
	})
}

// Tier operations

func (s *BoltStore) CreateTier(tier *types.Tier) error {
	return s.put(bucketTiers, nsKey(tier.Namespace, tier.Name), tier)
}

func (s *BoltStore) GetTier(namespace, name string) (*types.Tier, error) {
	var tier types.Tier
	if err := s.get(bucketTiers, nsKey(namespace, name), &tier); err != nil {
		return nil, err
	}
	return &tier, nil
}

func (s *BoltStore) ListTiers(namespace string) ([]*types.Tier, error) {
	var tiers []*types.Tier
	err := s.forEachPrefix(bucketTiers, namespace+"/", func(v []byte) error {
		var tier types.Tier
		if err := json.Unmarshal(v, &tier); err != nil {
			return err
		}
		tiers = append(tiers, &tier)
		return nil
	})
	return tiers, err
}

func (s *BoltStore) UpdateTier(tier *types.Tier) error {
	return s.CreateTier(tier) // upsert
}

func (s *BoltStore) DeleteTier(namespace, name string) error {
	return s.delete(bucketTiers, nsKey(namespace, name))
}

// Instance operations

func (s *BoltStore) CreateInstance(inst *types.Instance) error {
	return s.put(bucketInstances, nsKey(inst.Namespace, inst.ID), inst)
}

func (s *BoltStore) GetInstance(namespace, id string) (*types.Instance, error) {
	var inst types.Instance
	if err := s.get(bucketInstances, nsKey(namespace, id), &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *BoltStore) ListInstances(namespace string) ([]*types.Instance, error) {
	var instances []*types.Instance
	err := s.forEachPrefix(bucketInstances, namespace+"/", func(v []byte) error {
		var inst types.Instance
		if err := json.Unmarshal(v, &inst); err != nil {
			return err
		}
		instances = append(instances, &inst)
		return nil
	})
	return instances, err
}

func (s *BoltStore) ListInstancesByTier(namespace, tier string) ([]*types.Instance, error) {
	instances, err := s.ListInstances(namespace)
	if err != nil {
		return nil, err
	}
	var filtered []*types.Instance
	for _, inst := range instances {
		if inst.Tier == tier {
			filtered = append(filtered, inst)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateInstance(inst *types.Instance) error {
	return s.CreateInstance(inst)
}

func (s *BoltStore) DeleteInstance(namespace, id string) error {
	return s.delete(bucketInstances, nsKey(namespace, id))
}

// Storage claim operations

func (s *BoltStore) CreateClaim(claim *types.StorageClaim) error {
	return s.put(bucketClaims, nsKey(claim.Namespace, claim.ID), claim)
}

func (s *BoltStore) GetClaim(namespace, id string) (*types.StorageClaim, error) {
	var claim types.StorageClaim
	if err := s.get(bucketClaims, nsKey(namespace, id), &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

func (s *BoltStore) GetClaimByName(namespace, name string) (*types.StorageClaim, error) {
	claims, err := s.ListClaims(namespace)
	if err != nil {
		return nil, err
	}
	for _, claim := range claims {
		if claim.Name == name {
			return claim, nil
		}
	}
	return nil, fmt.Errorf("claim %q: %w", name, ErrNotFound)
}

func (s *BoltStore) ListClaims(namespace string) ([]*types.StorageClaim, error) {
	var claims []*types.StorageClaim
	err := s.forEachPrefix(bucketClaims, namespace+"/", func(v []byte) error {
		var claim types.StorageClaim
		if err := json.Unmarshal(v, &claim); err != nil {
			return err
		}
		claims = append(claims, &claim)
		return nil
	})
	return claims, err
}

func (s *BoltStore) UpdateClaim(claim *types.StorageClaim) error {
	return s.CreateClaim(claim)
}

func (s *BoltStore) DeleteClaim(namespace, id string) error {
	return s.delete(bucketClaims, nsKey(namespace, id))
}

// Storage volume operations

func (s *BoltStore) CreateVolume(vol *types.StorageVolume) error {
	return s.put(bucketVolumes, []byte(vol.ID), vol)
}

func (s *BoltStore) GetVolume(id string) (*types.StorageVolume, error) {
	var vol types.StorageVolume
	if err := s.get(bucketVolumes, []byte(id), &vol); err != nil {
		return nil, err
	}
	return &vol, nil
}

func (s *BoltStore) GetVolumeByName(name string) (*types.StorageVolume, error) {
	volumes, err := s.ListVolumes()
	if err != nil {
		return nil, err
	}
	for _, vol := range volumes {
		if vol.Name == name {
			return vol, nil
		}
	}
	return nil, fmt.Errorf("volume %q: %w", name, ErrNotFound)
}

func (s *BoltStore) ListVolumes() ([]*types.StorageVolume, error) {
	var volumes []*types.StorageVolume
	err := s.forEachPrefix(bucketVolumes, "", func(v []byte) error {
		var vol types.StorageVolume
		if err := json.Unmarshal(v, &vol); err != nil {
			return err
		}
		volumes = append(volumes, &vol)
		return nil
	})
	return volumes, err
}

func (s *BoltStore) UpdateVolume(vol *types.StorageVolume) error {
	return s.CreateVolume(vol)
}

func (s *BoltStore) DeleteVolume(id string) error {
	return s.delete(bucketVolumes, []byte(id))
}

// Credential operations

func (s *BoltStore) CreateCredential(cred *types.Credential) error {
	return s.put(bucketCredentials, nsKey(cred.Namespace, cred.Name), cred)
}

func (s *BoltStore) GetCredentialByName(namespace, name string) (*types.Credential, error) {
	var cred types.Credential
	if err := s.get(bucketCredentials, nsKey(namespace, name), &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *BoltStore) DeleteCredential(namespace, name string) error {
	return s.delete(bucketCredentials, nsKey(namespace, name))
}

// Service endpoint operations

func (s *BoltStore) CreateEndpoint(ep *types.ServiceEndpoint) error {
	return s.put(bucketEndpoints, nsKey(ep.Namespace, ep.Name), ep)
}

func (s *BoltStore) GetEndpoint(namespace, name string) (*types.ServiceEndpoint, error) {
	var ep types.ServiceEndpoint
	if err := s.get(bucketEndpoints, nsKey(namespace, name), &ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

func (s *BoltStore) ListEndpoints(namespace string) ([]*types.ServiceEndpoint, error) {
	var endpoints []*types.ServiceEndpoint
	err := s.forEachPrefix(bucketEndpoints, namespace+"/", func(v []byte) error {
		var ep types.ServiceEndpoint
		if err := json.Unmarshal(v, &ep); err != nil {
			return err
		}
		endpoints = append(endpoints, &ep)
		return nil
	})
	return endpoints, err
}

func (s *BoltStore) UpdateEndpoint(ep *types.ServiceEndpoint) error {
	return s.CreateEndpoint(ep)
}

func (s *BoltStore) DeleteEndpoint(namespace, name string) error {
	return s.delete(bucketEndpoints, nsKey(namespace, name))
}

// Topology status operations

func (s *BoltStore) PutTopologyStatus(status *types.TopologyStatus) error {
	return s.put(bucketStatus, []byte(status.Namespace), status)
}

func (s *BoltStore) GetTopologyStatus(namespace string) (*types.TopologyStatus, error) {
	var status types.TopologyStatus
	if err := s.get(bucketStatus, []byte(namespace), &status); err != nil {
		return nil, err
	}
	return &status, nil
}
