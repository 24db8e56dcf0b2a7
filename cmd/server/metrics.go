package main

import (
	"fmt"
	"net/http"

	"everdusk.gg/internal/engine"
	"everdusk.gg/internal/persistence/indexdb"
	"everdusk.gg/internal/persistence/r2s3"
	"everdusk.gg/internal/transport/ws"
)

// metricsHandler writes the minimal Prometheus exposition format by hand.
func metricsHandler(eng *engine.Engine, wsSrv *ws.Server, idx *indexdb.SQLiteIndex, mirror *r2s3.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		if sv, err := queryStats(r.Context(), eng); err == nil {
			fmt.Fprintf(rw, "# HELP everdusk_world_users Registered accounts.\n")
			fmt.Fprintf(rw, "# TYPE everdusk_world_users gauge\n")
			fmt.Fprintf(rw, "everdusk_world_users %d\n", sv.Users)

			fmt.Fprintf(rw, "# HELP everdusk_world_sessions Live sessions.\n")
			fmt.Fprintf(rw, "# TYPE everdusk_world_sessions gauge\n")
			fmt.Fprintf(rw, "everdusk_world_sessions %d\n", sv.Sessions)

			fmt.Fprintf(rw, "# HELP everdusk_world_players Characters, total and online.\n")
			fmt.Fprintf(rw, "# TYPE everdusk_world_players gauge\n")
			fmt.Fprintf(rw, "everdusk_world_players{state=%q} %d\n", "total", sv.Players)
			fmt.Fprintf(rw, "everdusk_world_players{state=%q} %d\n", "online", sv.OnlinePlayers)

			fmt.Fprintf(rw, "# HELP everdusk_world_npcs NPCs, total and alive.\n")
			fmt.Fprintf(rw, "# TYPE everdusk_world_npcs gauge\n")
			fmt.Fprintf(rw, "everdusk_world_npcs{state=%q} %d\n", "total", sv.NPCs)
			fmt.Fprintf(rw, "everdusk_world_npcs{state=%q} %d\n", "alive", sv.LiveNPCs)

			fmt.Fprintf(rw, "# HELP everdusk_world_chat_messages Retained chat messages.\n")
			fmt.Fprintf(rw, "# TYPE everdusk_world_chat_messages gauge\n")
			fmt.Fprintf(rw, "everdusk_world_chat_messages %d\n", sv.ChatMessages)

			fmt.Fprintf(rw, "# HELP everdusk_oplog_seq Last operation sequence written.\n")
			fmt.Fprintf(rw, "# TYPE everdusk_oplog_seq counter\n")
			fmt.Fprintf(rw, "everdusk_oplog_seq %d\n", sv.LastOpSeq)
		}

		conns, dropped := wsSrv.Stats()
		fmt.Fprintf(rw, "# HELP everdusk_ws_connections Open websocket connections.\n")
		fmt.Fprintf(rw, "# TYPE everdusk_ws_connections gauge\n")
		fmt.Fprintf(rw, "everdusk_ws_connections %d\n", conns)

		fmt.Fprintf(rw, "# HELP everdusk_ws_dropped_total Connections dropped for not draining their queue.\n")
		fmt.Fprintf(rw, "# TYPE everdusk_ws_dropped_total counter\n")
		fmt.Fprintf(rw, "everdusk_ws_dropped_total %d\n", dropped)

		writeIndexMetrics(rw, idx)
		writeMirrorMetrics(rw, mirror)
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP everdusk_index_queue_depth Index write queue depth.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "everdusk_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP everdusk_index_queue_capacity Index write queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "everdusk_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP everdusk_index_dropped_total Index rows dropped under pressure, per stream.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_index_dropped_total counter\n")
	fmt.Fprintf(rw, "everdusk_index_dropped_total{stream=%q} %d\n", "ops", s.DropOpTotal)
	fmt.Fprintf(rw, "everdusk_index_dropped_total{stream=%q} %d\n", "logins", s.DropLoginTotal)
	fmt.Fprintf(rw, "everdusk_index_dropped_total{stream=%q} %d\n", "chat", s.DropChatTotal)
	fmt.Fprintf(rw, "everdusk_index_dropped_total{stream=%q} %d\n", "snapshots", s.DropSnapshotTotal)
	fmt.Fprintf(rw, "everdusk_index_dropped_total{stream=%q} %d\n", "archives", s.DropArchiveTotal)
}

func writeMirrorMetrics(rw http.ResponseWriter, mirror *r2s3.Mirror) {
	if mirror == nil {
		return
	}
	s := mirror.Stats()
	fmt.Fprintf(rw, "# HELP everdusk_mirror_queue_depth Offsite mirror queue depth.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "everdusk_mirror_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP everdusk_mirror_queue_capacity Offsite mirror queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_mirror_queue_capacity gauge\n")
	fmt.Fprintf(rw, "everdusk_mirror_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP everdusk_mirror_enqueued_total Total mirror enqueue attempts.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_mirror_enqueued_total counter\n")
	fmt.Fprintf(rw, "everdusk_mirror_enqueued_total %d\n", s.EnqueuedTotal)

	fmt.Fprintf(rw, "# HELP everdusk_mirror_dropped_total Files dropped because the queue stayed saturated.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_mirror_dropped_total counter\n")
	fmt.Fprintf(rw, "everdusk_mirror_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(rw, "# HELP everdusk_mirror_upload_success_total Successful mirror uploads.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_mirror_upload_success_total counter\n")
	fmt.Fprintf(rw, "everdusk_mirror_upload_success_total %d\n", s.UploadSuccessTotal)

	fmt.Fprintf(rw, "# HELP everdusk_mirror_upload_fail_total Failed mirror uploads after retry.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_mirror_upload_fail_total counter\n")
	fmt.Fprintf(rw, "everdusk_mirror_upload_fail_total %d\n", s.UploadFailTotal)

	fmt.Fprintf(rw, "# HELP everdusk_mirror_last_success_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "everdusk_mirror_last_success_unix %d\n", s.LastSuccessUnix)

	fmt.Fprintf(rw, "# HELP everdusk_mirror_last_error_unix Unix time of the last failed upload.\n")
	fmt.Fprintf(rw, "# TYPE everdusk_mirror_last_error_unix gauge\n")
	fmt.Fprintf(rw, "everdusk_mirror_last_error_unix %d\n", s.LastErrorUnix)
}
