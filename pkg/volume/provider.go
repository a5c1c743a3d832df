package volume

// Provider is the consumed storage boundary. The binder decides which
// volume satisfies which claim; the provider only makes the attachment
// real on the host.
type Provider interface {
	// Register prepares backing storage for a volume and returns its
	// host path.
	Register(volumeID string) (string, error)

	// Attach marks the volume as attached to a claim. Attaching an
	// already-attached volume to a different claim must fail.
	Attach(volumeID, claimID string) error

	// Detach releases the attachment. Data is retained: detach is a pure
	// unbind, never an erase.
	Detach(volumeID string) error

	// Reset is the explicit administrative wipe that makes a released
	// volume's storage empty and reusable. It is never called from the
	// normal control path.
	Reset(volumeID string) error

	// Path returns the host path for a registered volume.
	Path(volumeID string) string

	// DataPath returns the host path of the volume's data directory,
	// the only part of the volume a workload may see.
	DataPath(volumeID string) string
}
