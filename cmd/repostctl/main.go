// Command repostctl manages the repost history database and inspects
// fingerprints offline.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"repost_bot/internal/fingerprint"
	"repost_bot/internal/model"
	"repost_bot/internal/notice"
	"repost_bot/internal/storage"
	"repost_bot/migrations"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "repostctl:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("repostctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to sqlite database")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return errUsage
	}

	switch rest[0] {
	case "migrate":
		return runMigrate(*dbPath, rest[1:], stderr)
	case "fingerprint":
		return runFingerprint(rest[1:], stdout, stderr)
	case "stats":
		return runStats(*dbPath, rest[1:], stdout, stderr)
	default:
		usage(stderr)
		return fmt.Errorf("unknown command: %s", rest[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: repostctl [-db path] <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  migrate up|up-one|down|status|version|reset")
	fmt.Fprintln(w, "                          Manage the history schema")
	fmt.Fprintln(w, "  fingerprint link <url>  Print the canonical form and fingerprint of a link")
	fmt.Fprintln(w, "  fingerprint file <path> Print the fingerprint of a file as an attachment")
	fmt.Fprintln(w, "  stats [-channel id] [-n count]")
	fmt.Fprintln(w, "                          Show repost statistics and recent history")
}

func runMigrate(dbPath string, args []string, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		return err
	}

	cmd := args[0]
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		return fmt.Errorf("unknown migrate command: %s", cmd)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

func runFingerprint(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tracking := fs.String("tracking", envOrDefault("REPOST_TRACKING_PARAMS", ""), "extra comma-separated tracking query parameters")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	rest := fs.Args()
	if len(rest) != 2 {
		usage(stderr)
		return errUsage
	}

	fp := fingerprint.New(fingerprint.WithTrackingParams(splitList(*tracking)...))

	switch rest[0] {
	case "link":
		canonical, err := fp.NormalizeLink(rest[1])
		if err != nil {
			return err
		}
		sum, err := fp.Of(model.KindLink, []byte(rest[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "canonical:   %s\n", canonical)
		fmt.Fprintf(stdout, "fingerprint: %s\n", sum)
	case "file":
		data, err := os.ReadFile(rest[1])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		sum, err := fp.Of(model.KindAttachment, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "size:        %s\n", notice.Bytes(int64(len(data))))
		fmt.Fprintf(stdout, "fingerprint: %s\n", sum)
	default:
		return fmt.Errorf("unknown fingerprint kind: %s", rest[0])
	}
	return nil
}

func runStats(dbPath string, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	channel := fs.String("channel", "", "channel ID; empty for all channels")
	n := fs.Int("n", 10, "number of recent reposts and top reposters to show")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	store, err := storage.NewSQLite(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	total, err := store.CountReposts(ctx, *channel)
	if err != nil {
		return err
	}
	top, err := store.TopReposters(ctx, *channel, *n)
	if err != nil {
		return err
	}
	recent, err := store.ListReposts(ctx, *channel, *n)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, strings.TrimRight(notice.Stats(total, top), "\n"))
	if total > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, notice.History(recent, time.Now()))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
