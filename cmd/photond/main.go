// Package main provides the photond daemon - the wallet's swap core.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tyler-smith/go-bip39"

	"github.com/photon-wallet/photon/internal/config"
	"github.com/photon-wallet/photon/internal/lnode"
	"github.com/photon-wallet/photon/internal/lsp"
	"github.com/photon-wallet/photon/internal/rpc"
	"github.com/photon-wallet/photon/internal/storage"
	"github.com/photon-wallet/photon/internal/swap"
	"github.com/photon-wallet/photon/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	// Parse flags
	var (
		dataDir      = flag.String("data-dir", config.DefaultDataDir, "Data directory")
		configFile   = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		apiAddr      = flag.String("api", "", "JSON-RPC API address, overrides config")
		mnemonicFile = flag.String("mnemonic-file", "", "Seed phrase file (default: <data-dir>/seed.txt)")
		logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion  = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("photond %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := config.ExpandPath(*dataDir)

	// Load config, writing defaults on first run
	cfgPath := *configFile
	if cfgPath == "" {
		cfgPath = filepath.Join(effectiveDataDir, "config.yaml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatal("Failed to load config", "error", err)
		}
		cfg = config.Default()
		cfg.DataDir = effectiveDataDir
		if err := cfg.Save(cfgPath); err != nil {
			log.Fatal("Failed to write default config", "error", err)
		}
		log.Info("Wrote default config", "path", cfgPath)
	}

	// Apply CLI overrides (CLI flags take precedence over config file)
	cfg.DataDir = effectiveDataDir
	if *apiAddr != "" {
		cfg.APIAddr = *apiAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Update logging with config level
	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", cfgPath, "network", cfg.Network)

	// Load the seed phrase the record cipher derives from
	mnemonic, err := loadMnemonic(*mnemonicFile, effectiveDataDir)
	if err != nil {
		log.Fatal("Failed to load seed phrase", "error", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.Open(&storage.Config{
		DataDir:  effectiveDataDir,
		Mnemonic: mnemonic,
	})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", effectiveDataDir)

	// Initialize collaborator clients
	lspClient := lsp.New(cfg.LSP.URL, cfg.LSP.Token)
	nodeClient := lnode.New(cfg.Node.RPCURL, cfg.Node.WSURL)
	defer nodeClient.Close()

	// Start RPC server early so the swapper can broadcast events to it
	rpcServer := rpc.NewServer(nil, store)

	// Initialize the swapper
	swapper := swap.New(&swap.Config{
		Store:                  store,
		Lsp:                    lspClient,
		Node:                   nodeClient,
		Network:                cfg.Network,
		MaxChannelCapacitySats: cfg.MaxChannelCapacitySats,
		InvoiceExpirySec:       cfg.InvoiceExpirySec,
		OnEvent: func(ev swap.Event) {
			if hub := rpcServer.WSHub(); hub != nil {
				hub.BroadcastSwapEvent(ev)
			}
		},
		BackupSink: func(env *storage.BackupEnvelope) {
			writeBackup(log, effectiveDataDir, env)
		},
	})
	defer swapper.Close()
	rpcServer.SetSwapper(swapper)
	log.Info("Swapper initialized")

	if err := rpcServer.Start(cfg.APIAddr); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	// Route invoice settlements from the node feed into the swapper
	nodeClient.OnInvoicePaid(swapper.OnInvoicePaid)

	// Replay missed chain activity, then go live
	tip, err := nodeClient.BlockHeight(ctx)
	if err != nil {
		log.Fatal("Failed to query chain tip", "error", err)
	}
	if err := swapper.Start(ctx, tip); err != nil {
		log.Fatal("Failed to start swapper", "error", err)
	}

	printBanner(log, cfg)

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	// Graceful shutdown
	cancel()

	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}

	log.Info("Goodbye!")
}

// loadMnemonic reads and validates the wallet seed phrase.
func loadMnemonic(path, dataDir string) (string, error) {
	if path == "" {
		path = filepath.Join(dataDir, "seed.txt")
	}
	data, err := os.ReadFile(config.ExpandPath(path))
	if err != nil {
		return "", err
	}
	mnemonic := strings.TrimSpace(string(data))
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", storage.ErrBadSeed
	}
	return mnemonic, nil
}

// writeBackup persists a backup envelope next to the database. The UI layer
// is expected to pick it up and ship it off-device.
func writeBackup(log *logging.Logger, dataDir string, env *storage.BackupEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error("Failed to marshal backup", "error", err)
		return
	}
	path := filepath.Join(dataDir, "backup.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		log.Error("Failed to write backup", "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		log.Error("Failed to finalize backup", "error", err)
		return
	}
	log.Debug("Backup written", "path", path, "id", env.ID)
}

func printBanner(log *logging.Logger, cfg *config.Config) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  Photon Wallet Core (%s)", cfg.Network)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API: http://%s", cfg.APIAddr)
	log.Infof("  WS:  ws://%s/ws", cfg.APIAddr)
	log.Infof("  Data dir: %s", cfg.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
