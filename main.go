package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/middleware"

	"github.com/tabledger/tabledger/internal/mongo"
	"github.com/tabledger/tabledger/internal/order"
	"github.com/tabledger/tabledger/internal/redis"
	"github.com/tabledger/tabledger/pkg"
)

const (
	appNamespace = "TABLEDGER"
	appName      = "tabledger"
	appVersion   = "0.1.0"
)

func main() {
	config, err := apt.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("%s(%s) cannot setup: %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	baseRepo := mongo.NewBaseRepo(config, logger)
	err = baseRepo.Start(ctx)
	if err != nil {
		log.Fatalf("%s(%s) cannot start base repository: %v", appName, appVersion, err)
	}

	db := baseRepo.GetDatabase()
	if db == nil {
		log.Fatalf("%s(%s) cannot initialize repository database: %v", appName, appVersion, errors.New("repository database is nil"))
	}

	orderRepo := mongo.NewOrderRepo(db)
	tableRepo := mongo.NewTableRepo(db)
	menuRepo := mongo.NewMenuRepo(db)
	userRepo := mongo.NewUserRepo(db)
	areaRepo := mongo.NewAreaRepo(db)

	locker := redis.NewLocker(redis.LockerOptions{
		Addr:       config.GetStringOrDef("redis.addr", "localhost:6379"),
		Password:   config.GetStringOrDef("redis.password", ""),
		DB:         atoiOrDef(config.GetStringOrDef("redis.db", "0"), 0),
		FailClosed: config.GetStringOrDef("lock.fail_closed", "false") == "true",
	}, logger)
	reportCache := redis.NewCache(locker, logger)

	natsURL := config.GetStringOrDef("nats.url", "nats://localhost:4222")
	pub, err := pkg.NewNATSPublisher(natsURL)
	if err != nil {
		log.Fatalf("%s(%s) cannot connect to NATS publisher: %v", appName, appVersion, err)
	}

	taxRate, err := strconv.ParseFloat(config.GetStringOrDef("tax.rate", "0"), 64)
	if err != nil {
		log.Fatalf("%s(%s) invalid tax.rate: %v", appName, appVersion, err)
	}

	clock := order.ISTClock{}

	engine := order.NewEngine(order.EngineDeps{
		Orders:    orderRepo,
		Tables:    tableRepo,
		Menu:      menuRepo,
		Locker:    locker,
		Clock:     clock,
		Publisher: pub,
		TaxRate:   taxRate,
	}, logger)

	projector := order.NewProjector(order.ProjectorDeps{
		Orders: orderRepo,
		Tables: tableRepo,
		Areas:  areaRepo,
		Users:  userRepo,
		Clock:  clock,
	}, logger)

	handler := order.NewHandler(order.HandlerDeps{
		Engine:    engine,
		Projector: projector,
		Cache:     reportCache,
	}, config, logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      logger,
		DisableCORS: true, // Internal API service
	})
	stack = append(stack, middleware.InternalOnly())

	lifecycles := []interface{}{
		apt.LifecycleHooks{OnStop: baseRepo.Stop},
		apt.LifecycleHooks{OnStop: func(context.Context) error {
			return locker.Close()
		}},
		apt.LifecycleHooks{OnStop: func(context.Context) error {
			return pub.Close()
		}},
	}

	options := []apt.Option{
		apt.WithConfig(config),
		apt.WithLogger(logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(appName),
	}

	ms := apt.NewMicro(options...)
	logger.Infof("Starting %s(%s)", appName, appVersion)

	err = ms.Run(ctx)
	if err != nil {
		_ = baseRepo.Stop(context.Background())
		log.Fatalf("%s(%s) stopped: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}

func atoiOrDef(value string, def int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}
