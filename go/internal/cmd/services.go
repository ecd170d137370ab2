package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcurtis22/triviarena/go/internal/accounts"
	"github.com/mcurtis22/triviarena/go/internal/game"
	"github.com/mcurtis22/triviarena/go/internal/gateway"
	"github.com/mcurtis22/triviarena/go/internal/ledger"
	"github.com/mcurtis22/triviarena/go/internal/relay"
)

type Services struct {
	Ledger    *ledger.App
	Accounts  *accounts.Service
	Engine    *game.Engine
	Gateway   *gateway.Service
	Publisher *relay.JetStreamPublisher
}

func setupServices(pool *pgxpool.Pool, cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerApp := ledger.NewApp(ledgerRepo)

	// Accounts
	accountsRepo := accounts.NewRepository(pool)
	accountsApp := accounts.NewApp(accountsRepo, ledgerApp)
	accountsService := accounts.NewService(accountsApp)

	// Event relay
	relayCfg := relay.DefaultJetStreamConfig()
	if cfg.Nats.URL != "" {
		relayCfg.URL = cfg.Nats.URL
	}
	publisher, err := relay.NewJetStreamPublisher(relayCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	// Game engine
	engine := game.NewEngine(cfg.gameConfig(), ledgerApp, publisher)

	// Gateway
	gatewayCfg := gateway.DefaultConfig()
	if cfg.Nats.URL != "" {
		gatewayCfg.JetStreamConfig.URL = cfg.Nats.URL
	}
	gatewayService, err := gateway.NewService(gatewayCfg, engine)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &Services{
		Ledger:    ledgerApp,
		Accounts:  accountsService,
		Engine:    engine,
		Gateway:   gatewayService,
		Publisher: publisher,
	}, nil
}
