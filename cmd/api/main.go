package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/payflow/internal/api"
	"github.com/punchamoorthee/payflow/internal/config"
	"github.com/punchamoorthee/payflow/internal/gateway"
	"github.com/punchamoorthee/payflow/internal/ledger"
	"github.com/punchamoorthee/payflow/internal/pending"
	"github.com/punchamoorthee/payflow/internal/recon"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ledgerStore, err := ledger.NewStore(cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer ledgerStore.Close()

	var pendingStore pending.Store
	switch cfg.PendingBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		pendingStore = pending.NewRedis(redis.NewClient(opts), cfg.PendingMaxAge)
	default:
		pendingStore = pending.NewMemory()
	}

	sweeper := pending.NewSweeper(pending.SweeperConfig{
		Store:    pendingStore,
		Interval: cfg.SweepInterval,
		MaxAge:   cfg.PendingMaxAge,
	})
	sweeper.Start()
	defer sweeper.Stop()

	authToken := cfg.AuthToken
	if authToken == "" {
		authToken = gateway.BasicToken(cfg.APIUsername, cfg.APIPassword)
	}

	payhero := gateway.New(gateway.Config{
		BaseURL:      cfg.PayHeroBaseURL,
		AuthToken:    authToken,
		ChannelID:    cfg.ChannelID,
		Provider:     cfg.Provider,
		NetworkCode:  cfg.NetworkCode,
		CallbackURL:  cfg.CallbackURL,
		CredentialID: cfg.CredentialID,
		Timeout:      cfg.GatewayTimeout,
	})

	engine := recon.New(recon.Config{
		Gateway: payhero,
		Ledger:  ledgerStore,
		Pending: pendingStore,
	})
	handler := api.NewHandler(engine, pendingStore, ledgerStore)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	apiRoutes := r.PathPrefix("/api").Subrouter()
	apiRoutes.HandleFunc("/process-payment", handler.ProcessPayment).Methods("POST")
	apiRoutes.HandleFunc("/check-status", handler.CheckStatus).Methods("GET")
	apiRoutes.HandleFunc("/balance", handler.GetBalance).Methods("GET")
	apiRoutes.HandleFunc("/account", handler.GetAccount).Methods("GET")
	apiRoutes.HandleFunc("/accounts", handler.CreateAccount).Methods("POST")
	apiRoutes.HandleFunc("/debug/payments", handler.PendingPayments).Methods("GET")
	apiRoutes.HandleFunc("/webhook", handler.Webhook).Methods("POST")

	// Static frontend (payment form + status poller)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))

	log.Printf("Server starting on :%s (pending store: %s)", cfg.Port, cfg.PendingBackend)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
