// Command orindb-cli is an interactive debug shell over an orindb
// Database: open tables, insert/find/delete/scan keys, and inspect the
// buffer pool's resident frames directly, without a wire protocol.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/orindb/orindb/internal/config"
	"github.com/orindb/orindb/internal/engine"
)

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".orindb_history"
	}
	return filepath.Join(home, ".orindb_history")
}

func main() {
	fs := pflag.NewFlagSet("orindb-cli", pflag.ExitOnError)
	cfgPath := fs.String("config", "", "path to orindb.yaml config (optional)")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, v, err := config.Load(*cfgPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var level slog.LevelVar
	parsed, err := parseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log level: %v\n", err)
		os.Exit(1)
	}
	level.Set(parsed)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))
	if v != nil {
		config.WatchLogLevel(v, &level)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create data dir: %v\n", err)
		os.Exit(1)
	}

	db, err := engine.Init(afero.NewOsFs(), cfg.Storage.DataDir, cfg.Buffer.Capacity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Shutdown() }()

	if err := db.OpenTable(cfg.Storage.DefaultTable); err != nil {
		fmt.Fprintf(os.Stderr, "open default table: %v\n", err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "orindb> ",
		HistoryFile:     defaultHistoryPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	fmt.Printf("orindb debug shell, data dir %s, %d buffer frames\n", cfg.Storage.DataDir, cfg.Buffer.Capacity)
	fmt.Println("type help for a command list")

	shell := &shell{db: db, table: cfg.Storage.DefaultTable}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}
		shell.dispatch(strings.TrimSpace(line))
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// shell holds the debug shell's REPL state: the open database and which
// table unqualified commands act on.
type shell struct {
	db    *engine.Database
	table string
}

func (s *shell) dispatch(line string) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		_ = s.db.Shutdown()
		os.Exit(0)
	case "help":
		s.printHelp()
	case "use":
		s.cmdUse(args)
	case "warmup":
		s.cmdWarmup(args)
	case "insert":
		s.cmdInsert(args)
	case "find":
		s.cmdFind(args)
	case "delete":
		s.cmdDelete(args)
	case "scan":
		s.cmdScan(args)
	case "frames":
		s.cmdFrames()
	default:
		fmt.Printf("unknown command: %s (try help)\n", cmd)
	}
}

func (s *shell) printHelp() {
	fmt.Print(`commands:
  use <table>                   open table and make it the active table
  warmup <table> [table ...]    open several tables concurrently
  insert <key> <value>          insert into the active table
  find <key>                    look up a key in the active table
  delete <key>                  delete a key from the active table
  scan <begin> <end>            range scan [begin, end] in the active table
  frames                        dump resident buffer pool frames
  help                          show this help
  quit | exit                   flush and quit
`)
}

// printErr reports err, calling out ErrNoSpace distinctly so the operator
// knows to free frames (close handles elsewhere, or raise buffer.capacity)
// rather than treat it like an ordinary failure.
func printErr(err error) {
	if errors.Is(err, engine.ErrNoSpace) {
		fmt.Printf("error: no space: every buffer frame is pinned (%v)\n", err)
		return
	}
	fmt.Printf("error: %v\n", err)
}

func (s *shell) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: use <table>")
		return
	}
	if err := s.db.OpenTable(args[0]); err != nil {
		printErr(err)
		return
	}
	s.table = args[0]
	fmt.Printf("active table: %s\n", s.table)
}

// cmdWarmup opens every named table concurrently. Database.OpenTable holds
// the database lock for its whole call, so the opens themselves run one at
// a time; each one reads (or, for a new table, creates) that table's header
// and root pages through the shared buffer pool.
func (s *shell) cmdWarmup(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: warmup <table> [table ...]")
		return
	}

	var wg conc.WaitGroup
	results := make([]error, len(args))
	for i, name := range args {
		i, name := i, name
		wg.Go(func() {
			results[i] = s.db.OpenTable(name)
		})
	}
	wg.Wait()

	for i, name := range args {
		if results[i] != nil {
			fmt.Printf("%s: error: %v\n", name, results[i])
			continue
		}
		fmt.Printf("%s: opened\n", name)
	}
}

func (s *shell) cmdInsert(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: insert <key> <value>")
		return
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("bad key: %v\n", err)
		return
	}
	if err := s.db.Insert(s.table, key, []byte(args[1])); err != nil {
		printErr(err)
		return
	}
	fmt.Println("OK")
}

func (s *shell) cmdFind(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: find <key>")
		return
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("bad key: %v\n", err)
		return
	}
	val, found, err := s.db.Find(s.table, key)
	if err != nil {
		printErr(err)
		return
	}
	if !found {
		fmt.Println("not found")
		return
	}
	fmt.Printf("%s\n", val)
}

func (s *shell) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: delete <key>")
		return
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("bad key: %v\n", err)
		return
	}
	if err := s.db.Delete(s.table, key); err != nil {
		printErr(err)
		return
	}
	fmt.Println("OK")
}

func (s *shell) cmdScan(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: scan <begin> <end>")
		return
	}
	begin, err1 := strconv.ParseInt(args[0], 10, 64)
	end, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		fmt.Println("bad key bounds")
		return
	}
	rows, err := s.db.Scan(s.table, begin, end)
	if err != nil {
		printErr(err)
		return
	}
	for _, kv := range rows {
		fmt.Printf("%d\t%s\n", kv.Key, kv.Value)
	}
	fmt.Printf("(%d rows)\n", len(rows))
}

func (s *shell) cmdFrames() {
	for _, f := range s.db.Frames() {
		fmt.Printf("slot=%d table=%d page=%d dirty=%v pinned=%d lastUsed=%d\n",
			f.Slot, f.Table, f.PageNum, f.Dirty, f.PinCount, f.LastUsed)
	}
}
