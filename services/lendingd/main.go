package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lendpool/config"
	"lendpool/lending"
	"lendpool/observability/logging"
	"lendpool/storage"
)

func main() {
	runtime := LoadRuntimeFromEnv()
	log := logging.Setup("lendingd", runtime.Environment)
	if err := runtime.Validate(); err != nil {
		log.Error("invalid runtime configuration", "error", err.Error())
		os.Exit(1)
	}
	log.Info("starting lendingd",
		"config", runtime.ConfigPath,
		logging.MaskSecret("adminToken", runtime.AdminToken),
	)

	cfg, err := config.LoadOrDefault(runtime.ConfigPath)
	if err != nil {
		log.Error("load market configuration", "error", err.Error())
		os.Exit(1)
	}
	listen := cfg.ListenAddress
	if runtime.Listen != "" {
		listen = runtime.Listen
	}
	dataDir := cfg.DataDir
	if runtime.DataDir != "" {
		dataDir = runtime.DataDir
	}

	var db storage.Database
	if runtime.InMemory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(dataDir)
		if err != nil {
			log.Error("open database", "path", dataDir, "error", err.Error())
			os.Exit(1)
		}
		db = ldb
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("close database", "error", err.Error())
		}
	}()

	state := storage.NewState(db)
	vault := newVault()
	oracle := newPriceBook()

	treasury := common.Address{}
	if cfg.Treasury != "" {
		if treasury, err = cfg.TreasuryAddress(); err != nil {
			log.Error("parse treasury", "error", err.Error())
			os.Exit(1)
		}
	}

	engine := lending.NewEngine(treasury)
	engine.SetState(state)
	engine.SetOracle(oracle)
	engine.SetCustody(vault)
	engine.SetEmitter(&logEmitter{log: log})
	engine.SetTimestamp(uint64(time.Now().Unix()))

	whitelist, err := cfg.WhitelistAddresses()
	if err != nil {
		log.Error("parse forced liquidation whitelist", "error", err.Error())
		os.Exit(1)
	}
	engine.SetForcedLiquidationWhitelist(whitelist)

	if err := bootstrap(engine, state, cfg, log); err != nil {
		log.Error("bootstrap market", "error", err.Error())
		os.Exit(1)
	}

	server := NewServer(engine, state, vault, oracle, log, runtime.AdminToken, runtime.RateLimitPerMin)
	httpServer := &http.Server{
		Addr:              listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "address", listen)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error("shutdown", "error", err.Error())
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve", "error", err.Error())
			os.Exit(1)
		}
	}
}

// bootstrap applies the configured categories and reserves that are not yet
// present in the store. Existing records are left untouched so restarts do
// not clobber accrued state; interest models are always re-wired because they
// live in memory.
func bootstrap(engine *lending.Engine, state *storage.State, cfg *config.Config, log *slog.Logger) error {
	admin := engine.Treasury()
	for _, block := range cfg.EModeCategories {
		category, err := block.BuildCategory()
		if err != nil {
			return err
		}
		existing, err := state.GetEModeCategory(category.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := engine.SetEModeCategory(admin, category); err != nil {
			return err
		}
		log.Info("registered emode category", "category", category.ID, "label", category.Label)
	}
	for _, block := range cfg.Reserves {
		reserve, err := block.BuildReserve()
		if err != nil {
			return err
		}
		engine.SetInterestModel(reserve.Asset, block.BuildInterestModel())
		existing, err := state.GetReserve(reserve.Asset)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := engine.InitReserve(admin, reserve); err != nil {
			return err
		}
		log.Info("initialised reserve", "asset", reserve.Asset.Hex())
	}
	return nil
}
