package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/mmmaly/chcemvediet-sub000/internal/api"
	"github.com/mmmaly/chcemvediet-sub000/internal/app"
	"github.com/mmmaly/chcemvediet-sub000/internal/cli"
	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/config"
	"github.com/mmmaly/chcemvediet-sub000/internal/database"
	"github.com/mmmaly/chcemvediet-sub000/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Initialize(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	engine, err := app.New(db, cfg, zlog, clock.NewSystem())
	if err != nil {
		log.Fatalf("Failed to wire application: %v", err)
	}

	// CLI command
	if len(os.Args) > 1 {
		cli.Execute(engine)
		return
	}

	router, keyManager, err := api.SetupRouter(cfg, api.Deps{
		LogService:   engine.LogService,
		Inforequests: engine.Inforequests,
		Router:       engine.Router,
		Mail:         engine.Mail,
		Attachments:  engine.Attachments,
		Obligees:     engine.Obligees,
		Collector:    engine.Collector,
	})
	if err != nil {
		log.Fatalf("Failed to setup router: %v", err)
	}

	if engine.SMTPIn != nil {
		go func() {
			if err := engine.SMTPIn.Start(); err != nil {
				zlog.Fatal("inbound SMTP server failed", zap.Error(err))
			}
		}()
		defer engine.SMTPIn.Close()
	}

	engine.Scheduler.Start()
	defer engine.Scheduler.Stop()
	engine.Pump.Start()
	defer engine.Pump.Stop()

	zlog.Info("starting server",
		zap.String("port", cfg.APIPort),
		zap.String("environment", cfg.Environment),
		zap.String("inbound_transport", cfg.InboundTransport),
		zap.String("data_dir", cfg.DataDir))
	log.Printf("API Key: %s", keyManager.GetCurrentKey())
	if err := router.Run(":" + cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
