// Copyright (c) 2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lorilorr/aurora/pkg/common/async"
	"github.com/lorilorr/aurora/pkg/common/background"
	"github.com/lorilorr/aurora/pkg/common/backoff"
	"github.com/lorilorr/aurora/pkg/common/config"
	"github.com/lorilorr/aurora/pkg/common/health"
	"github.com/lorilorr/aurora/pkg/common/logging"
	"github.com/lorilorr/aurora/pkg/common/metrics"
	"github.com/lorilorr/aurora/pkg/common/rpc"
	"github.com/lorilorr/aurora/pkg/common/timer"
	"github.com/lorilorr/aurora/pkg/middleware/inbound"
	"github.com/lorilorr/aurora/pkg/scheduler"
	"github.com/lorilorr/aurora/pkg/scheduler/assign"
	"github.com/lorilorr/aurora/pkg/scheduler/driver"
	"github.com/lorilorr/aurora/pkg/scheduler/events"
	"github.com/lorilorr/aurora/pkg/scheduler/offer"
	"github.com/lorilorr/aurora/pkg/scheduler/state"
	"github.com/lorilorr/aurora/pkg/storage/memdb"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/yarpc"
	"go.uber.org/yarpc/api/transport"
	"go.uber.org/yarpc/encoding/json"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

const (
	_serviceName        = "aurora-scheduler"
	_appLogField        = "app"
	_tallyFlushInterval = 1 * time.Second

	_dispatcherStartAttempts = 5
	_dispatcherStartInterval = 2 * time.Second
)

var (
	version string
	app     = kingpin.New(_serviceName, "Offer matching task scheduler")

	debug = app.Flag(
		"debug", "enable debug mode (print full json responses)").
		Short('d').
		Default("false").
		Envar("ENABLE_DEBUG_LOGGING").
		Bool()

	enableSentry = app.Flag(
		"enable-sentry", "enable logging hook up to sentry").
		Default("false").
		Envar("ENABLE_SENTRY_LOGGING").
		Bool()

	cfgFiles = app.Flag(
		"config",
		"YAML config files (can be provided multiple times to merge configs)").
		Short('c').
		Required().
		ExistingFiles()

	httpPort = app.Flag(
		"http-port", "Scheduler HTTP port (server.http_port override) "+
			"(set $HTTP_PORT to override)").
		Envar("HTTP_PORT").
		Int()

	grpcPort = app.Flag(
		"grpc-port", "Scheduler GRPC port (server.grpc_port override) "+
			"(set $GRPC_PORT to override)").
		Envar("GRPC_PORT").
		Int()

	resmgrAddress = app.Flag(
		"resmgr-address", "Resource manager address "+
			"(resource_manager.address override) (set $RESMGR_ADDRESS to override)").
		Envar("RESMGR_ADDRESS").
		String()

	replaceLostTasks = app.Flag(
		"replace-lost-tasks", "Replace tasks lost or failed with new pending tasks").
		Default("false").
		Envar("REPLACE_LOST_TASKS").
		Bool()
)

func getConfig(cfgFiles ...string) Config {
	log.WithField("files", cfgFiles).
		Info("Loading Scheduler config")

	var cfg Config
	if err := config.Parse(&cfg, cfgFiles...); err != nil {
		log.WithError(err).Fatal("Cannot parse yaml config")
	}
	if *enableSentry {
		cfg.SentryConfig.Enabled = true
	}
	if err := logging.ConfigureSentry(&cfg.SentryConfig); err != nil {
		log.WithError(err).Fatal("Cannot configure sentry")
	}

	// now, override any CLI flags in the loaded config
	if *httpPort != 0 {
		cfg.Server.HTTPPort = *httpPort
	}
	if *grpcPort != 0 {
		cfg.Server.GRPCPort = *grpcPort
	}
	if *resmgrAddress != "" {
		cfg.ResourceManager.Address = *resmgrAddress
	}
	if *replaceLostTasks {
		cfg.State.ReplaceLostTasks = true
	}

	log.WithField("config", cfg).
		Info("Loaded Scheduler config")
	return cfg
}

func main() {
	app.Version(version)
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log.SetFormatter(
		&logging.LogFieldFormatter{
			Formatter: &log.JSONFormatter{},
			Fields: log.Fields{
				_appLogField: app.Name,
			},
		},
	)

	initialLevel := log.InfoLevel
	if *debug {
		initialLevel = log.DebugLevel
	}
	log.SetLevel(initialLevel)

	cfg := getConfig(*cfgFiles...)

	var heartbeat *health.Heartbeat
	rootScope, scopeCloser, mux, err := metrics.InitMetricScope(
		&cfg.Metrics,
		_serviceName,
		_tallyFlushInterval,
		func() bool { return heartbeat.Healthy() },
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize metrics")
	}
	defer scopeCloser.Close()
	rootScope.Counter("boot").Inc(1)

	heartbeat = health.NewHeartbeat(rootScope, cfg.Health, nil)
	mux.HandleFunc(logging.LevelOverwrite, logging.LevelOverwriteHandler(initialLevel))

	inbounds, err := rpc.NewInbounds(cfg.Server.HTTPPort, cfg.Server.GRPCPort, mux)
	if err != nil {
		log.WithError(err).Fatal("Failed to create inbounds")
	}
	resmgrOutbound, err := rpc.NewOutbound(cfg.ResourceManager)
	if err != nil {
		log.WithError(err).Fatal("Failed to create resource manager outbound")
	}

	rateLimiter, err := inbound.NewRateLimiter(cfg.RateLimit, rootScope)
	if err != nil {
		log.WithError(err).Fatal("Failed to create rate limiter")
	}
	procedureMetrics := inbound.NewProcedureMetrics(rootScope)

	dispatcher := yarpc.NewDispatcher(yarpc.Config{
		Name:     _serviceName,
		Inbounds: inbounds,
		InboundMiddleware: yarpc.InboundMiddleware{
			Unary:  yarpc.UnaryInboundMiddleware(procedureMetrics, rateLimiter),
			Oneway: yarpc.OnewayInboundMiddleware(procedureMetrics, rateLimiter),
		},
		Outbounds: yarpc.Outbounds{
			cfg.Driver.Outbound: transport.Outbounds{
				Unary: resmgrOutbound,
			},
		},
		Metrics: yarpc.MetricsConfig{
			Tally: rootScope,
		},
	})

	clock := clockwork.NewRealClock()

	// One timer runs scheduling attempts, offer expiries and decline
	// retries.
	delay := timer.NewDelayScheduler(rootScope, clock)

	declines, err := async.NewWorkQueue(cfg.Driver.DeclineQueue, delay, rootScope)
	if err != nil {
		log.WithError(err).Fatal("Failed to create decline queue")
	}
	resmgrDriver := driver.NewYARPCDriver(
		json.New(dispatcher.ClientConfig(cfg.Driver.Outbound)),
		declines,
		cfg.Driver.CallTimeout,
		rootScope,
	)

	bus := events.NewBus(rootScope)
	store, err := memdb.New(bus, rootScope)
	if err != nil {
		log.WithError(err).Fatal("Failed to create task store")
	}
	stateManager := state.NewManager(store, cfg.State, clock, rootScope)

	pool := offer.NewPool(
		resmgrDriver,
		cfg.Scheduler.ReturnDelay(),
		delay,
		rootScope,
	)
	taskScheduler, err := scheduler.New(
		cfg.Scheduler,
		store,
		stateManager,
		assign.NewResourceAssigner(),
		pool,
		delay,
		rootScope,
	)
	if err != nil {
		log.WithError(err).Fatal("Failed to create scheduler")
	}

	bus.Register(stateManager)
	bus.Register(taskScheduler)

	works := background.NewManager(clock)
	if cfg.State.StatsInterval > 0 {
		err = works.RegisterWorks(background.Work{
			Name:   "task_stats",
			Func:   stateManager.ReportTaskStats,
			Period: cfg.State.StatsInterval,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to register background works")
		}
	}

	scheduler.NewServiceHandler(
		taskScheduler,
		stateManager,
		store,
		rootScope,
	).Register(dispatcher)

	delay.Start()
	declines.Start()
	taskScheduler.Start()

	err = backoff.Retry(
		context.Background(),
		dispatcher.Start,
		backoff.NewRetryPolicy(_dispatcherStartAttempts, _dispatcherStartInterval),
	)
	if err != nil {
		log.WithError(err).Fatal("Unable to start rpc server")
	}

	store.Start()
	works.Start()
	heartbeat.Start()
	heartbeat.SetReady(true)

	log.WithFields(log.Fields{
		"http_port": cfg.Server.HTTPPort,
		"grpc_port": cfg.Server.GRPCPort,
	}).Info("Started scheduler")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.WithField("signal", sig).Info("Stopping scheduler")

	heartbeat.SetReady(false)
	// Stopping the pool submits declines of the held offers, which the
	// decline queue sends before its workers stop. Retries of failed
	// declines are given up with the timer.
	works.Stop()
	taskScheduler.Stop()
	declines.Stop()
	delay.Stop()
	if err := dispatcher.Stop(); err != nil {
		log.WithError(err).Error("Failed to stop rpc server")
	}
	heartbeat.Stop()
}
