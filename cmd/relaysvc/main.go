package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/rfid-relay/configs"
	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/avvvet/rfid-relay/internal/hwlink"
	"github.com/avvvet/rfid-relay/internal/relaysvc/broker"
	"github.com/avvvet/rfid-relay/internal/relaysvc/command"
	handlers "github.com/avvvet/rfid-relay/internal/relaysvc/handlers"
	"github.com/avvvet/rfid-relay/internal/relaysvc/hub"
	"github.com/avvvet/rfid-relay/internal/relaysvc/ingress"
	"github.com/avvvet/rfid-relay/internal/relaysvc/metrics"
	"github.com/avvvet/rfid-relay/internal/relaysvc/reconcile"
	"github.com/avvvet/rfid-relay/internal/relaysvc/service"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
)

const SERVICE_NAME = "relay"

var settings *config.Settings

func init() {
	config.LoadEnv(SERVICE_NAME)

	s, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	settings = s

	config.Logging(SERVICE_NAME+"_service", settings.Log.Dir, settings.Log.Level)
}

func main() {
	instanceId := config.CreateUniqueInstance(SERVICE_NAME)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewRelay(reg)

	// store connection, lazy: the relay keeps serving viewers while it is down
	cardStore, txStore, closeStore, err := store.Open(ctx, settings.Store)
	if err != nil {
		log.Fatalf("Failed to configure store: %v", err)
	}
	defer closeStore()

	cardService := service.NewCardService(cardStore)
	transactionService := service.NewTransactionService(txStore, settings.Relay.RecentTransactions)
	statsService := service.NewStatsService(cardStore, txStore)

	viewers := hub.NewHub(settings.Relay.ViewerBuffer, m)
	queue := ingress.NewQueue(settings.Relay.QueueSize)

	engine := reconcile.NewEngine(cardService, transactionService, viewers, reconcile.Options{
		PresenceTimeout: settings.Relay.PresenceTimeout,
		Tick:            settings.Relay.WatchdogTick,
		StoreTimeout:    settings.Store.Timeout,
		Metrics:         m,
	})

	// hardware link
	ch, err := hwlink.Open(settings.Hardware, SERVICE_NAME+"-"+instanceId, nil)
	if err != nil {
		log.Errorf("Error: unable to open hardware link %v", err)
		os.Exit(1)
	}

	topics := comm.NewTopics(settings.Hardware.TopicPrefix)
	b := broker.NewBroker(ch, topics, queue, m)
	if err := b.Subscribe(ctx); err != nil {
		log.Errorf("Error: unable to subscribe to hardware topics %v", err)
		os.Exit(1)
	}

	relay := command.NewRelay(cardService, b, m)

	engineDone := make(chan struct{})
	go func() {
		engine.Run(ctx, queue.Events())
		close(engineDone)
	}()

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(settings.HTTP.AllowedOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(settings.HTTP.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(handlers.Deps{
		Hub:          viewers,
		Cards:        cardService,
		Transactions: transactionService,
		Stats:        statsService,
		Relay:        relay,
		Queue:        queue,
		Gatherer:     reg,
		ScanTopic:    topics.Status,
		Port:         settings.HTTP.Port,
	})
	h.InitAuth(settings.Auth.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings; no WriteTimeout, viewer sockets are long lived
	server := &http.Server{
		Addr:        ":" + settings.HTTP.Port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ch.Close()
	queue.Close()
	cancel()
	<-engineDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	viewers.Close()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
