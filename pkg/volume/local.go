package volume

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultVolumesPath is the base directory for local volumes
	DefaultVolumesPath = "/var/lib/strata/volumes"

	// ownerMarker records which claim currently owns the volume's data.
	ownerMarker = ".owner"
)

// LocalProvider implements Provider with plain directories. Each volume is
// a directory under basePath; attachment state is an owner marker file so
// it survives controller restarts.
type LocalProvider struct {
	basePath string
}

// NewLocalProvider creates a local provider rooted at basePath.
func NewLocalProvider(basePath string) (*LocalProvider, error) {
	if basePath == "" {
		basePath = DefaultVolumesPath
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volumes directory: %w", err)
	}
	return &LocalProvider{basePath: basePath}, nil
}

// Register creates the volume's data directory if it does not exist.
func (p *LocalProvider) Register(volumeID string) (string, error) {
	path := p.Path(volumeID)
	if err := os.MkdirAll(filepath.Join(path, "data"), 0755); err != nil {
		return "", fmt.Errorf("failed to create volume directory: %w", err)
	}
	return path, nil
}

// Attach writes the owner marker. A marker naming a different claim means
// the volume is already owned and the attach must fail.
func (p *LocalProvider) Attach(volumeID, claimID string) error {
	markerPath := filepath.Join(p.Path(volumeID), ownerMarker)

	existing, err := os.ReadFile(markerPath)
	switch {
	case err == nil:
		if string(existing) == claimID {
			return nil // re-attach by the same claim is a no-op
		}
		return fmt.Errorf("volume %s already attached to claim %s", volumeID, string(existing))
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read owner marker: %w", err)
	}

	if err := os.WriteFile(markerPath, []byte(claimID), 0600); err != nil {
		return fmt.Errorf("failed to write owner marker: %w", err)
	}
	return nil
}

// Detach removes the owner marker. The data directory stays on disk.
func (p *LocalProvider) Detach(volumeID string) error {
	markerPath := filepath.Join(p.Path(volumeID), ownerMarker)
	if err := os.Remove(markerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove owner marker: %w", err)
	}
	return nil
}

// Reset wipes the retained data. Only valid on a detached volume.
func (p *LocalProvider) Reset(volumeID string) error {
	markerPath := filepath.Join(p.Path(volumeID), ownerMarker)
	if _, err := os.Stat(markerPath); err == nil {
		return fmt.Errorf("volume %s is still attached, refusing to wipe", volumeID)
	}

	dataPath := filepath.Join(p.Path(volumeID), "data")
	if err := os.RemoveAll(dataPath); err != nil {
		return fmt.Errorf("failed to wipe volume data: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("failed to recreate volume directory: %w", err)
	}
	return nil
}

// Path returns the host path for a volume.
func (p *LocalProvider) Path(volumeID string) string {
	return filepath.Join(p.basePath, volumeID)
}

// DataPath returns the mountable data directory for a volume.
func (p *LocalProvider) DataPath(volumeID string) string {
	return filepath.Join(p.basePath, volumeID, "data")
}
