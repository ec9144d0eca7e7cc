package tracking

import (
	"fmt"

	"pdmflow/pkg/interfaces"
	"pdmflow/pkg/store/mysql"
)

// NewStore picks the tracking store for backend. repo is required for mysql.
func NewStore(backend string, repo *mysql.Repository) (interfaces.TrackingStore, error) {
	switch backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "mysql":
		if repo == nil {
			return nil, fmt.Errorf("mysql tracking backend requires a database connection")
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported tracking backend: %s", backend)
	}
}
