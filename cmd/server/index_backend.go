package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"everdusk.gg/internal/persistence/indexdb"
)

// openRuntimeIndex opens the read-model index. A nil return with nil error
// means indexing is off and the server runs on the oplog alone.
func openRuntimeIndex(dataDir, backend string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "world.sqlite"))
	case "none", "off", "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported EVERDUSK_INDEX_BACKEND: %s", backend)
	}
}
