package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"everdusk.gg/internal/engine"
	"everdusk.gg/internal/protocol"
	"everdusk.gg/internal/sim/catalogs"
	"everdusk.gg/internal/sim/tuning"
	"everdusk.gg/internal/sim/world"
	"everdusk.gg/internal/transport/observer"
	"everdusk.gg/internal/transport/ws"
)

// serverEnv holds deployment settings read from the environment. Flags cover
// the knobs an operator changes per run; these are set once per deployment.
type serverEnv struct {
	EnableAdminHTTP bool   `env:"EVERDUSK_ENABLE_ADMIN_HTTP" envDefault:"true"`
	EnablePprofHTTP bool   `env:"EVERDUSK_ENABLE_PPROF_HTTP" envDefault:"false"`
	IndexBackend    string `env:"EVERDUSK_INDEX_BACKEND" envDefault:"sqlite"`

	MirrorEnabled  bool   `env:"EVERDUSK_MIRROR" envDefault:"false"`
	MirrorEndpoint string `env:"EVERDUSK_MIRROR_ENDPOINT"`
	MirrorBucket   string `env:"EVERDUSK_MIRROR_BUCKET"`
	MirrorKeyID    string `env:"EVERDUSK_MIRROR_ACCESS_KEY_ID"`
	MirrorSecret   string `env:"EVERDUSK_MIRROR_SECRET_ACCESS_KEY"`
	MirrorPrefix   string `env:"EVERDUSK_MIRROR_PREFIX"`
	MirrorWorkers  int    `env:"EVERDUSK_MIRROR_UPLOAD_WORKERS" envDefault:"2"`
}

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")
		callQueue  = flag.Int("call_queue", 1024, "engine call queue capacity")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	var cfg serverEnv
	if err := env.Parse(&cfg); err != nil {
		logger.Fatalf("parse env: %v", err)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Default()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Read-model index; never part of the authoritative state.
	idx, err := openRuntimeIndex(*dataDir, cfg.IndexBackend, *disableDB)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	mirror, err := buildMirror(cfg, *dataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}
	if mirror != nil {
		defer mirror.Close()
	}

	w := world.New(cats, tune)
	rec, err := engine.Recover(w, *dataDir)
	if err != nil {
		logger.Fatalf("recover: %v", err)
	}
	if rec.SnapshotPath != "" || rec.Replayed > 0 {
		logger.Printf("recovered snapshot=%s seq=%d replayed=%d",
			filepath.Base(rec.SnapshotPath), rec.LastSeq, rec.Replayed)
	}

	eng, err := engine.New(w, *dataDir, rec, engine.Options{
		Logger:    logger,
		Index:     idx,
		Mirror:    mirror,
		CallQueue: *callQueue,
	})
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}

	wsSrv := ws.NewServer(eng, tune, cats, logger)
	eng.SetSink(wsSrv)

	ctx, cancel := signalContext()
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(ctx) }()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(eng, wsSrv, idx, mirror))

	if cfg.EnableAdminHTTP {
		// Local-only admin endpoints; they read through the engine's query
		// path and cannot touch authoritative state.
		mux.HandleFunc("/admin/v1/state", stateHandler(eng))
		obs := observer.NewServer(eng, tune, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (EVERDUSK_ENABLE_ADMIN_HTTP=false)")
	}
	if cfg.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// The engine writes its final snapshot on the way out; wait for it
	// before the deferred index and mirror closes flush their queues.
	cancel()
	if err := <-runDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("engine stopped: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// queryStats fetches the host-stamped stats view from the engine loop.
func queryStats(ctx context.Context, eng *engine.Engine) (protocol.StatsView, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resp, err := eng.Submit(ctx, engine.SystemIdentity, protocol.OpStats, nil)
	if err != nil {
		return protocol.StatsView{}, err
	}
	sv, ok := resp.Data.(protocol.StatsView)
	if !ok {
		return protocol.StatsView{}, errors.New("unexpected stats payload")
	}
	return sv, nil
}

func stateHandler(eng *engine.Engine) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		sv, err := queryStats(r.Context(), eng)
		if err != nil {
			http.Error(rw, "world unavailable", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(sv)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
