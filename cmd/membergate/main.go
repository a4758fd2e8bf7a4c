package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/keetontrades/membergate/app/controllers"
	"github.com/keetontrades/membergate/internal/pkg/access"
	"github.com/keetontrades/membergate/internal/pkg/billing"
	"github.com/keetontrades/membergate/internal/pkg/cache"
	"github.com/keetontrades/membergate/internal/pkg/community"
	"github.com/keetontrades/membergate/internal/pkg/env"
	"github.com/keetontrades/membergate/internal/pkg/eventqueue"
	"github.com/keetontrades/membergate/internal/pkg/router"
)

func main() {
	app, manager := NewApplication()
	manager.Start()
	defer manager.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *eventqueue.Manager) {
	env.SetupEnvFile()
	cache.SetupCache()

	// domain wiring
	catalog, err := billing.LoadCatalogFromEnv()
	if err != nil {
		panic(err)
	}

	whop := billing.NewWhopClientFromEnv()
	stripeClient := billing.NewStripeClientFromEnv()

	sessions := billing.NewSessionRegistry()
	machine := billing.NewStateMachine()

	accessCtrl := access.NewController(accessStoreFromEnv(), machine)
	communityMgr := community.NewManagerFromEnv()
	machine.SetInvalidator(accessCtrl)
	machine.SetFulfiller(communityMgr)

	checkoutRouter := billing.NewRouter(catalog, whop, stripeClient, sessions, machine)

	manager := eventqueue.NewManager(machine, sessions)
	queue := manager.GetQueue()

	// controllers
	checkoutController := controllers.NewCheckoutController(checkoutRouter, sessions)
	accessController := controllers.NewAccessController(accessCtrl, catalog, communityMgr, machine)
	webhookController := controllers.NewWebhookController(queue, billing.NewWebhookDedupe(), sessions)
	statsController := controllers.NewStatsController(catalog)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "membergate",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: docsPath(),
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app,
		router.NewApiRouter(checkoutController, accessController, statsController),
		router.NewWebhookRouter(webhookController),
	)

	return app, manager
}

func accessStoreFromEnv() access.Store {
	if env.GetEnv("ACCESS_CACHE_DRIVER", "memory") == "redis" {
		return access.NewRedisStore()
	}
	return access.NewMemoryStore()
}

func docsPath() string {
	basePaths := []string{
		"./",
		"../../",
		"../../../",
	}
	for _, path := range basePaths {
		candidate := path + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(candidate); !os.IsNotExist(err) {
			return candidate
		}
	}
	return "./public/docs/v1/openapi.yml"
}
