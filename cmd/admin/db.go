package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (defaults to <data>/index/world.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	opFilter := fs.String("op", "", "op name filter (ops)")
	caller := fs.String("caller", "", "caller identity filter (ops)")
	channel := fs.String("channel", "", "channel filter (chat)")
	identity := fs.String("identity", "", "identity filter (logins)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT last_op_seq,path,saved_at,digest,users,players,npcs,slots,skills,channels FROM snapshots ORDER BY last_op_seq DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				LastOpSeq uint64 `json:"last_op_seq"`
				Path      string `json:"path"`
				SavedAt   int64  `json:"saved_at"`
				Digest    string `json:"digest"`
				Users     int    `json:"users"`
				Players   int    `json:"players"`
				NPCs      int    `json:"npcs"`
				Slots     int    `json:"slots"`
				Skills    int    `json:"skills"`
				Channels  int    `json:"channels"`
			}
			if err := rows.Scan(&r.LastOpSeq, &r.Path, &r.SavedAt, &r.Digest, &r.Users, &r.Players, &r.NPCs, &r.Slots, &r.Skills, &r.Channels); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "ops":
		query := `SELECT seq,ts,caller,op,ok,code,args_json FROM ops`
		var conds []string
		var qargs []any
		if strings.TrimSpace(*opFilter) != "" {
			conds = append(conds, "op=?")
			qargs = append(qargs, strings.TrimSpace(*opFilter))
		}
		if strings.TrimSpace(*caller) != "" {
			conds = append(conds, "caller=?")
			qargs = append(qargs, strings.TrimSpace(*caller))
		}
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " ORDER BY seq DESC LIMIT ?"
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq    uint64          `json:"seq"`
				TS     int64           `json:"ts"`
				Caller string          `json:"caller"`
				Op     string          `json:"op"`
				OK     bool            `json:"ok"`
				Code   string          `json:"code,omitempty"`
				Args   json.RawMessage `json:"args"`
			}
			var code sql.NullString
			var argsRaw string
			if err := rows.Scan(&r.Seq, &r.TS, &r.Caller, &r.Op, &r.OK, &code, &argsRaw); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Code = code.String
			r.Args = json.RawMessage(argsRaw)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "logins":
		query := `SELECT seq,identity,username,event,remote_addr,client_version,at FROM logins`
		var qargs []any
		if strings.TrimSpace(*identity) != "" {
			query += " WHERE identity=?"
			qargs = append(qargs, strings.TrimSpace(*identity))
		}
		query += " ORDER BY seq DESC LIMIT ?"
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq           uint64 `json:"seq"`
				Identity      string `json:"identity"`
				Username      string `json:"username"`
				Event         string `json:"event"`
				RemoteAddr    string `json:"remote_addr,omitempty"`
				ClientVersion string `json:"client_version,omitempty"`
				At            string `json:"at"`
			}
			var addr, ver sql.NullString
			if err := rows.Scan(&r.Seq, &r.Identity, &r.Username, &r.Event, &addr, &ver, &r.At); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.RemoteAddr, r.ClientVersion = addr.String, ver.String
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "chat":
		query := `SELECT id,channel,sender,sender_name,sent_at,text FROM chat`
		var qargs []any
		if strings.TrimSpace(*channel) != "" {
			query += " WHERE channel=?"
			qargs = append(qargs, strings.TrimSpace(*channel))
		}
		query += " ORDER BY id DESC LIMIT ?"
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				ID         uint64 `json:"id"`
				Channel    string `json:"channel"`
				Sender     string `json:"sender"`
				SenderName string `json:"sender_name"`
				SentAt     string `json:"sent_at"`
				Text       string `json:"text"`
			}
			if err := rows.Scan(&r.ID, &r.Channel, &r.Sender, &r.SenderName, &r.SentAt, &r.Text); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "archives":
		rows, err := db.Query(`SELECT upto_seq,path,segments,recorded_at FROM archives ORDER BY upto_seq DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				UptoSeq    uint64 `json:"upto_seq"`
				Path       string `json:"path"`
				Segments   int    `json:"segments"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.UptoSeq, &r.Path, &r.Segments, &r.RecordedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-limit N] [-op OP] [-caller ID] [-channel CH] [-identity ID] snapshots|ops|logins|chat|archives|catalogs")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
