// Command keyctl administers license keys directly against the configured store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keyforge/internal/config"
	"keyforge/internal/infrastructure"
	"keyforge/internal/keys"
	"keyforge/internal/notify"
	"keyforge/internal/services"
	"keyforge/internal/store"
)

const usage = `keyctl manages license keys in the configured store.

Usage:
  keyctl [-config file] [-json] <command> [flags] [args]

Commands:
  generate   [-n amount]                          mint permanent keys
  tempkey    -minutes m [-n amount]               mint temporary keys
  show       <key>                                print one key
  delete     <key>                                remove a key
  resethwid  <key>                                unbind a key from its hardware id
  revoke     <key>                                deactivate a key
  list       [-filter f]                          list keys
  checktime  [key]                                remaining lifetime of temporary keys
  stats      [-report]                            collection statistics
  cleanup                                         remove expired temporary keys
  export     [-format csv|xlsx] [-filter f] [-out path]
`

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	fs := flag.NewFlagSet("keyctl", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	jsonOut := fs.Bool("json", false, "print results as JSON")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	var (
		cfg *config.Config
		err error
	)
	if *configFile != "" {
		cfg, err = config.LoadFrom(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "keyctl:", err)
		return 1
	}
	logger := infrastructure.NewLogger(os.Stderr, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, store.ConfigFrom(cfg.Store), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "keyctl:", err)
		return 1
	}
	defer backend.Close()

	manager := keys.NewManager(backend.Store,
		keys.WithLocker(backend.Locker),
		keys.WithIDGenerator(keys.UUIDGenerator{Length: cfg.Keys.IDLength}),
		keys.WithLimits(keys.Limits{
			MaxBatch: cfg.Keys.MaxBatch,
			MinTTL:   keys.DefaultMinTTL,
			MaxTTL:   cfg.Keys.MaxTTL(),
		}),
		keys.WithLogger(logger),
	)
	notifier := notify.New(cfg.Webhook, logger)

	c := &cli{
		service: services.NewKeyService(manager, notifier, logger),
		out:     os.Stdout,
		json:    *jsonOut,
		now:     time.Now,
	}
	runErr := c.run(ctx, fs.Args())

	// queued webhook posts are delivered before exit
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Webhook.Timeout+time.Second)
	defer cancel()
	if err := notifier.Close(closeCtx); err != nil {
		logger.Warn("webhook queue not drained", slog.String("error", err.Error()))
	}

	switch {
	case errors.Is(runErr, errUsage):
		fmt.Fprintln(os.Stderr, "keyctl:", runErr)
		fmt.Fprint(os.Stderr, usage)
		return 2
	case runErr != nil:
		fmt.Fprintln(os.Stderr, "keyctl:", runErr)
		return 1
	}
	return 0
}
