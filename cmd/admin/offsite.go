package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"everdusk.gg/internal/persistence/r2s3"
)

type mirrorEnv struct {
	Endpoint string `env:"EVERDUSK_MIRROR_ENDPOINT"`
	Bucket   string `env:"EVERDUSK_MIRROR_BUCKET"`
	KeyID    string `env:"EVERDUSK_MIRROR_ACCESS_KEY_ID"`
	Secret   string `env:"EVERDUSK_MIRROR_SECRET_ACCESS_KEY"`
	Prefix   string `env:"EVERDUSK_MIRROR_PREFIX"`
}

// offsiteCmd verifies that what the server persisted locally actually made
// it to the object store: the newest snapshot plus the most recent archived
// oplog segments. A missing object means the mirror queue dropped it or the
// server died before the upload finished; re-run the server with the mirror
// enabled and it sweeps the backlog at startup.
func offsiteCmd(args []string) {
	fs := flag.NewFlagSet("offsite", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("limit", 10, "archived segments to check")
	_ = fs.Parse(args)

	var cfg mirrorEnv
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "parse env:", err)
		os.Exit(1)
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.KeyID == "" || cfg.Secret == "" {
		fmt.Fprintln(os.Stderr, "mirror not configured: set EVERDUSK_MIRROR_ENDPOINT, _BUCKET, _ACCESS_KEY_ID, _SECRET_ACCESS_KEY")
		os.Exit(2)
	}

	client, err := r2s3.New(cfg.Endpoint, cfg.Bucket, cfg.KeyID, cfg.Secret)
	if err != nil {
		fmt.Fprintln(os.Stderr, "client:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var keys []string
	if snap := latestSnapshot(*dataDir); snap != "" {
		keys = append(keys, path.Join("snapshots", filepath.Base(snap)))
	} else {
		fmt.Println("no local snapshot yet; skipping snapshot check")
	}
	keys = append(keys, archiveKeys(*dataDir, *limit)...)

	if len(keys) == 0 {
		fmt.Println("nothing to check")
		return
	}

	missing := 0
	for _, rel := range keys {
		key := rel
		if cfg.Prefix != "" {
			key = path.Join(cfg.Prefix, rel)
		}
		found, err := client.Head(ctx, key)
		switch {
		case err != nil:
			fmt.Printf("error    %s: %v\n", key, err)
			missing++
		case found:
			fmt.Printf("ok       %s\n", key)
		default:
			fmt.Printf("MISSING  %s\n", key)
			missing++
		}
	}
	if missing > 0 {
		fmt.Printf("offsite check failed: %d of %d objects missing\n", missing, len(keys))
		os.Exit(1)
	}
	fmt.Printf("offsite check ok: %d objects\n", len(keys))
}

// archiveKeys lists the newest archived oplog segments relative to the data
// dir, newest first, at most limit of them.
func archiveKeys(dataDir string, limit int) []string {
	var rels []string
	root := filepath.Join(dataDir, "archives")
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".jsonl.zst") {
			return nil
		}
		rel, err := filepath.Rel(dataDir, p)
		if err != nil {
			return nil
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	sort.Sort(sort.Reverse(sort.StringSlice(rels)))
	if limit > 0 && len(rels) > limit {
		rels = rels[:limit]
	}
	return rels
}
