package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cohort-copilot/core/config"
	"cohort-copilot/core/database"
	"cohort-copilot/core/loader"
	"cohort-copilot/core/logger"
	"cohort-copilot/core/middleware/auth"
	"cohort-copilot/core/middleware/rayid"
	"cohort-copilot/core/storage"
	"cohort-copilot/core/supervisor"

	"cohort-copilot/feature/assist"
	"cohort-copilot/feature/dataset"
	"cohort-copilot/feature/export"
	"cohort-copilot/feature/history"
	"cohort-copilot/feature/query"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "cohort-copilot/docs/swagger"
)

// @title Cohort Copilot API
// @version 1.0
// @description API for querying clinical cohort data in natural language.
// @host localhost:5050
// @BasePath /

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cohort copilot server",
	Long:  `Starts the HTTP server, begins the background dataset load and initializes all enabled features.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Connect to Database (Optional)
		// Without it the service still answers queries; only /history disables.
		var db *gorm.DB
		if conn, err := database.Connect(cfg.Database); err != nil {
			logg.Warn("Optional database connection failed", zap.Error(err))
		} else {
			db = conn
			logg.Info("Connected to history database", zap.String("driver", cfg.Database.Driver))
		}

		// 4. Initialize Storage (Optional)
		// Without it query exports and the /exports routes disable.
		var store storage.Client
		if client, err := storage.NewClient(cfg.Storage); err != nil {
			logg.Warn("Optional storage client failed", zap.Error(err))
		} else {
			store = client
		}

		// 5. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// 6. Request Supervisor
		// Worker groups with handler slots; a stuck request kills and
		// replaces its whole group, mirroring a pre-fork server.
		sup, err := supervisor.New(cfg.Supervisor, logg)
		if err != nil {
			logg.Fatal("Failed to create supervisor", zap.Error(err))
		}
		sup.Start()

		// 7. Dataset + Translator
		dataSvc := dataset.NewService(cfg.Upstream, logg)
		dataSvc.EnsureBackgroundLoad()

		translator, err := assist.NewTranslator(cfg.OpenAI)
		if err != nil {
			logg.Fatal("Failed to create query translator", zap.Error(err))
		}

		// 8. Initialize Feature Loader
		mgr := loader.NewManager()

		histFeature := history.NewFeature(db, logg)
		exportFeature := export.NewFeature(store, cfg.Storage.Bucket, logg)

		var historian query.Historian
		if histFeature.IsEnabled() {
			historian = histFeature.Service()
		}
		var exporter query.Exporter
		if exportFeature.IsEnabled() {
			exporter = exportFeature.Service()
		}

		querySvc := query.NewService(dataSvc, translator, historian, exporter, logg)

		// Register Features
		mgr.Register(query.NewFeature(querySvc, logg))
		mgr.Register(dataset.NewFeature(dataSvc, logg))
		mgr.Register(histFeature)
		mgr.Register(exportFeature)

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Custom to use Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 3. Supervisor (every request runs on a worker slot)
		app.Use(supervisor.Middleware(sup))

		// 3.5 Swagger Documentation (Public)
		app.Get("/swagger/*", swagger.HandlerDefault)

		// 4. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// 5. Load Features
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 6. Start Server
		go func() {
			logg.Info("Starting server",
				zap.String("addr", cfg.Server.Addr()),
				zap.Int("workers", cfg.Supervisor.Workers),
				zap.Int("threads", cfg.Supervisor.Threads),
			)
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 7. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		_ = app.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sup.Shutdown(ctx); err != nil {
			logg.Warn("Supervisor shutdown incomplete", zap.Error(err))
		}
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
