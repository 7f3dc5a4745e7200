package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libshare-go/client"
	"github.com/bitfsorg/libshare-go/config"
	"github.com/bitfsorg/libshare-go/directory"
	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/ledger"
	"github.com/bitfsorg/libshare-go/session"
	"github.com/bitfsorg/libshare-go/storage"
)

const (
	dbFileName  = "libshare.db"
	blobDirName = "blobs"
	keyFileName = "identity.key"
)

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	dataDir string
	keyFile string
}

func newFlagSet(name string) (*pflag.FlagSet, *globalFlags) {
	g := &globalFlags{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&g.dataDir, "datadir", "", "data directory (default $"+config.EnvDataDir+" or ~/.libshare)")
	fs.StringVar(&g.keyFile, "key-file", "", "identity key file (default <datadir>/"+keyFileName+")")
	return fs, g
}

// loadConfig resolves the data directory and reads its config file.
// Precedence is flag, then environment, then file, then defaults.
func (g *globalFlags) loadConfig() (config.Config, error) {
	dataDir := g.dataDir
	if dataDir == "" {
		dataDir = os.Getenv(config.EnvDataDir)
	}
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	cfg, err := config.LoadConfig(config.ConfigPath(dataDir))
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return cfg, err
	}
	config.ApplyEnv(&cfg)
	cfg.DataDir = dataDir
	if err := config.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (g *globalFlags) keyPath(cfg config.Config) string {
	if g.keyFile != "" {
		return g.keyFile
	}
	return filepath.Join(cfg.DataDir, keyFileName)
}

// env is the opened local state of one invocation.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *bbolt.DB
	local   *storage.FileStore
	blobs   *storage.ContentResolver
	ledger  *ledger.BoltLedger
	index   *storage.BoltPathIndex
	dir     directory.Directory
	closers []io.Closer
}

func openEnv(g *globalFlags) (*env, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}
	e.logger, err = newLogger(cfg, &e.closers)
	if err != nil {
		return nil, err
	}

	code, err := config.HashCode(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	if e.local, err = storage.NewFileStore(filepath.Join(cfg.DataDir, blobDirName), code); err != nil {
		e.Close()
		return nil, err
	}
	e.blobs = storage.NewContentResolver(e.local, cfg.Gateways...)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		e.Close()
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	e.db, err = bbolt.Open(filepath.Join(cfg.DataDir, dbFileName), 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	e.closers = append(e.closers, e.db)

	if e.ledger, err = ledger.NewBoltLedger(e.db); err != nil {
		e.Close()
		return nil, err
	}
	if e.index, err = storage.NewBoltPathIndex(e.db); err != nil {
		e.Close()
		return nil, err
	}
	localDir, err := directory.NewBoltDirectory(e.db, cfg.Mainnet())
	if err != nil {
		e.Close()
		return nil, err
	}
	e.dir = localDir
	if cfg.DirectoryZone != "" {
		resolver := directory.DefaultTXTResolver
		if cfg.DNSUpstream != "" {
			resolver = directory.NewDNSSECResolver(cfg.DNSUpstream)
		}
		e.dir = directory.Chain{localDir, directory.NewDNSDirectory(cfg.DirectoryZone, resolver, cfg.Mainnet())}
	}
	return e, nil
}

// Close releases everything openEnv acquired, newest first.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
	e.closers = nil
}

// session loads the identity key and binds it to the opened state.
func (e *env) session(g *globalFlags) (session.SessionContext, error) {
	priv, err := identity.LoadKeyFile(g.keyPath(e.cfg))
	if err != nil {
		return session.SessionContext{}, fmt.Errorf("%w (run 'libshare keygen' first)", err)
	}
	return session.New(priv, e.cfg.Network, e.ledger, e.blobs, e.index, e.dir)
}

// client builds a client bound to the identity key.
func (e *env) client(g *globalFlags) (*client.Client, error) {
	s, err := e.session(g)
	if err != nil {
		return nil, err
	}
	return client.New(s, client.Options{
		Logger:         e.logger,
		UnshareRetries: e.cfg.UnshareRetries,
	})
}

// newLogger writes text records to LogFile, or stderr when unset.
func newLogger(cfg config.Config, closers *[]io.Closer) (*slog.Logger, error) {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		*closers = append(*closers, f)
		w = f
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})), nil
}

// withClient parses flags, opens the environment and runs fn with a client.
func withClient(fs *pflag.FlagSet, g *globalFlags, args []string, nargs int, usage string, fn func(ctx context.Context, c *client.Client, args []string) error) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != nargs {
		return fmt.Errorf("usage: libshare %s", usage)
	}
	e, err := openEnv(g)
	if err != nil {
		return err
	}
	defer e.Close()
	c, err := e.client(g)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, c, fs.Args())
}
