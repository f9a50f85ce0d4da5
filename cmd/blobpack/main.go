package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mferon/blobpack/internal/backup"
	"github.com/mferon/blobpack/internal/config"
	"github.com/mferon/blobpack/internal/logx"
	"github.com/mferon/blobpack/internal/store"
	"github.com/mferon/blobpack/internal/version"
)

// defaultRetain is the prune count used when neither the CLI, the
// environment nor the config file supplies one. Deleting everything
// requires an explicit 0.
const defaultRetain = 5

// runner is the slice of the handler the CLI drives.
type runner interface {
	Backup(ctx context.Context, target, renameTo string) error
	Restore(ctx context.Context, directory string) error
	Prune(ctx context.Context, retain int) error
}

// Test seams — overridden in unit tests. Keep signatures in sync with packages.
var (
	loadConfig = config.Load
	initLog    = logx.Init
	newStore   = func(cfg config.Config) (backup.ObjectStore, error) {
		return store.New(cfg)
	}
	newRunner = func(st backup.ObjectStore, cfg config.Config) runner {
		return backup.New(st, cfg.Backup.BackupTarget, cfg.Backup.Includes)
	}
	exit = os.Exit
)

const usage = `
Usage:
  blobpack [--config <file>] backup  [target] [renameTo]
  blobpack [--config <file>] restore [directory]
  blobpack [--config <file>] prune   [retain]
  blobpack version | --version | -v
  blobpack help    | --help    | -h

Notes:
  - The config file comes from --config, then BLOBPACK_CONFIG
    (default: blobpack.yaml).
  - Operands can also be set via env vars:
      BACKUP_TARGET, BACKUP_RENAME, RESTORE_TARGET, PRUNE_RETAIN
  - prune without a retain count keeps the configured backup.retain,
    or 5 when none is set. Deleting everything requires an explicit 0.
  - Azure credentials are read from the environment (AZURE_STORAGE_ACCOUNT,
    AZURE_STORAGE_SAS or AZURE_CLIENT_ID/SECRET/AZURE_TENANT_ID).
`

// main wires CLI -> config -> store -> backup/restore/prune.
// Exit codes: 0 success, 1 runtime error, 2 usage error.
func main() {
	_ = godotenv.Load() // best-effort

	configFlag, args := splitConfigFlag(os.Args[1:])
	if len(args) < 1 {
		fmt.Print(usage)
		exit(2)
		return
	}
	action := strings.ToLower(args[0])

	if action == "version" || action == "--version" || action == "-v" {
		fmt.Printf("blobpack %s\n", version.Info())
		exit(0)
		return
	}
	if action == "help" || action == "--help" || action == "-h" {
		fmt.Print(usage)
		exit(0)
		return
	}

	cfg, err := loadConfig(configPath(configFlag))
	if err != nil {
		log.Error().Err(err).Msg("config error")
		exit(1)
		return
	}
	if err := initLog(cfg.Logging); err != nil {
		log.Error().Err(err).Msg("logging setup error")
		exit(1)
		return
	}

	st, err := newStore(cfg)
	if err != nil {
		log.Error().Err(err).Str("bucket", cfg.Bucket).Msg("store init error")
		exit(1)
		return
	}
	h := newRunner(st, cfg)

	ctx := withSignals(context.Background())

	switch action {
	case "backup":
		target := pickArgOrEnv(args, 1, "BACKUP_TARGET", cfg.Backup.BackupTarget)
		renameTo := pickArgOrEnv(args, 2, "BACKUP_RENAME", "")
		if err := h.Backup(ctx, target, renameTo); err != nil {
			exit(1)
		}

	case "restore":
		directory := pickArgOrEnv(args, 1, "RESTORE_TARGET", cfg.Backup.BackupTarget)
		if err := h.Restore(ctx, directory); err != nil {
			exit(1)
		}

	case "prune":
		retain, err := resolveRetain(pickArgOrEnv(args, 1, "PRUNE_RETAIN", ""), cfg.Backup.Retain)
		if err != nil {
			fmt.Print(usage)
			exit(2)
			return
		}
		if err := h.Prune(ctx, retain); err != nil {
			exit(1)
		}

	default:
		fmt.Print(usage)
		exit(2)
	}
}

// splitConfigFlag extracts --config <file> (or --config=<file>) from the
// argument list and returns the remaining arguments untouched, so operand
// positions stay stable regardless of where the flag appears.
func splitConfigFlag(args []string) (string, []string) {
	var path string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			path = strings.TrimPrefix(args[i], "--config=")
		default:
			rest = append(rest, args[i])
		}
	}
	return path, rest
}

// configPath resolves the config file: --config flag, then the
// BLOBPACK_CONFIG env var, then the default file name.
func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v, ok := os.LookupEnv("BLOBPACK_CONFIG"); ok && v != "" {
		return v
	}
	return "blobpack.yaml"
}

// resolveRetain turns the raw prune operand into a retain count. An empty
// operand falls back to the configured count, then defaultRetain; it never
// resolves to 0 implicitly.
func resolveRetain(raw string, configured int) (int, error) {
	if raw == "" {
		if configured > 0 {
			return configured, nil
		}
		return defaultRetain, nil
	}
	retain, err := strconv.Atoi(raw)
	if err != nil || retain < 0 {
		return 0, fmt.Errorf("invalid retain count %q", raw)
	}
	return retain, nil
}

// pickArgOrEnv resolves an operand: positional argument (idx into args,
// where args[0] is the action), then env var, then default.
func pickArgOrEnv(args []string, idx int, env string, def string) string {
	if len(args) > idx && args[idx] != "" {
		return args[idx]
	}
	if v, ok := os.LookupEnv(env); ok && v != "" {
		return v
	}
	return def
}

func withSignals(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx
}
