package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openclob/tally/params"
	"github.com/openclob/tally/pkg/api"
	"github.com/openclob/tally/pkg/crypto"
	"github.com/openclob/tally/pkg/custody"
	"github.com/openclob/tally/pkg/events"
	"github.com/openclob/tally/pkg/ledger"
	"github.com/openclob/tally/pkg/util"
	"github.com/openclob/tally/pkg/venue"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogPath)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogPath)

	// ---- Admin identity ----
	// The admin key issues pause capabilities. Devnet generates an ephemeral
	// one when neither a key nor an address is configured.
	var admin common.Address
	switch {
	case cfg.Node.AdminKeyHex != "":
		signer, err := crypto.FromPrivateKeyHex(cfg.Node.AdminKeyHex)
		if err != nil {
			sugar.Fatalw("admin_key_invalid", "err", err)
		}
		admin = signer.Address()
	case cfg.Node.AdminAddress != "":
		if !common.IsHexAddress(cfg.Node.AdminAddress) {
			sugar.Fatalw("admin_address_invalid", "addr", cfg.Node.AdminAddress)
		}
		admin = common.HexToAddress(cfg.Node.AdminAddress)
	default:
		signer, err := crypto.GenerateKey()
		if err != nil {
			sugar.Fatalw("admin_keygen_failed", "err", err)
		}
		admin = signer.Address()
		sugar.Infow("ephemeral_admin_generated", "addr", admin.Hex())
	}

	// ---- Core wiring ----
	bus := events.NewBus(sugar)
	vault := custody.NewVault()

	registry, err := ledger.NewRegistry(cfg.Node.DBPath, admin, vault, bus, sugar)
	if err != nil {
		sugar.Fatalw("registry_init_failed", "err", err)
	}
	defer registry.Close()

	stub := venue.NewStub()
	stub.FillNum = cfg.Venue.FillNum
	stub.FillDen = cfg.Venue.FillDen

	sugar.Infow("node_starting",
		"db_path", cfg.Node.DBPath,
		"admin", admin.Hex(),
		"venue_fill", cfg.Venue.FillNum,
		"venue_fill_den", cfg.Venue.FillDen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(registry, stub, bus, util.RealClock{})

	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.ListenAddr)
		if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")
}
