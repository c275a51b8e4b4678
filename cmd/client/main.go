package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/medlab/internal/client/api"
	"github.com/iudanet/medlab/internal/client/auth"
	"github.com/iudanet/medlab/internal/client/cli"
	"github.com/iudanet/medlab/internal/client/config"
	"github.com/iudanet/medlab/internal/client/iocli"
	"github.com/iudanet/medlab/internal/client/session"
	"github.com/iudanet/medlab/internal/client/storage"
	"github.com/iudanet/medlab/internal/client/storage/boltdb"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to YAML config")
	serverURL := flag.String("server", "", "API base URL, overrides config")
	dbPath := flag.String("db", "", "Path to local credential database, overrides config")
	password := flag.String("password", "", "Account password (not recommended)")
	passwordFile := flag.String("password-file", "", "Path to file containing the account password")

	flag.Parse()

	stdio := iocli.NewStdio()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		return 0
	}

	// Получаем команду
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(stdio)
		return 1
	}
	command := args[0]

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *serverURL != "" {
		cfg.Server.BaseURL = *serverURL
		cfg.Server.Candidates = nil
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	var store storage.CredentialStore = boltStorage
	if cfg.Storage.Passphrase != "" {
		sealed, err := storage.NewSealedStore(ctx, boltStorage, cfg.Storage.Passphrase)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open sealed storage: %v\n", err)
			return 1
		}
		store = sealed
	}

	machine := session.NewMachine(logger)
	defer machine.Close()
	manager := session.NewManager(store, machine, logger)

	baseURL := cfg.Server.BaseURL
	var discovery *api.Discovery
	if len(cfg.Server.Candidates) > 0 {
		discovery = api.NewDiscovery(cfg.Server.Candidates, cfg.Server.DiscoveryTimeout, logger)
		if command != "discover" {
			baseURL = discovery.Resolve(ctx)
		}
	}

	// Создаем API клиент
	apiClient := api.NewClient(baseURL, manager,
		api.WithTimeout(cfg.Server.Timeout),
		api.WithLogger(logger),
	)
	authService := auth.NewAuthService(apiClient, manager,
		auth.WithForceLogoutOnLaunch(cfg.Session.ForceLogoutOnLaunch),
		auth.WithLogger(logger),
	)

	c := cli.New(stdio, authService, discovery, cli.Passwords{
		FromFile: *passwordFile,
		FromArgs: *password,
	})
	if err := c.Run(ctx, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printVersion() {
	fmt.Printf("MedLab Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
