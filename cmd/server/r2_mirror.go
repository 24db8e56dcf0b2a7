package main

import (
	"fmt"
	"log"

	"everdusk.gg/internal/persistence/r2s3"
)

// buildMirror assembles the offsite mirror from the environment config. A
// nil return with nil error means mirroring is off.
func buildMirror(cfg serverEnv, dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !cfg.MirrorEnabled {
		return nil, nil
	}
	if cfg.MirrorEndpoint == "" || cfg.MirrorBucket == "" || cfg.MirrorKeyID == "" || cfg.MirrorSecret == "" {
		return nil, fmt.Errorf("EVERDUSK_MIRROR=true but endpoint/bucket/access key/secret are not fully set")
	}
	client, err := r2s3.New(cfg.MirrorEndpoint, cfg.MirrorBucket, cfg.MirrorKeyID, cfg.MirrorSecret)
	if err != nil {
		return nil, err
	}
	m := r2s3.NewMirror(client, dataDir, cfg.MirrorPrefix, cfg.MirrorWorkers, 0, 0, logger)
	// Pick up whatever a previous run left behind before new files arrive.
	m.SweepExisting("snapshots", "oplog", "archives")
	return m, nil
}
