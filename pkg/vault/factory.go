package vault

import "fmt"

// StoreConfig contains configuration for creating a secret store.
type StoreConfig struct {
	// DataDir is required for file-based stores.
	DataDir string
	// Passphrase is required for file-based stores.
	Passphrase string
	// Gate guards reads on gated stores. Defaults to NoopGate.
	Gate Gate
}

// NewStore creates a secret store based on the persistence type.
func NewStore(persistenceType string, config StoreConfig) (Store, error) {
	switch persistenceType {
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file store")
		}
		gate := config.Gate
		if gate == nil {
			gate = NoopGate{}
		}
		return NewFileStore(config.DataDir, config.Passphrase, WithGate(gate))
	case "inmem", "memory":
		return NewInMemStore(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: file, inmem)", persistenceType)
	}
}
