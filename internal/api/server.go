package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetsim/internal/config"
	"fleetsim/internal/geo"
	"fleetsim/internal/metrics"
	"fleetsim/internal/opt"
	"fleetsim/internal/store"
	"fleetsim/internal/track"
	"fleetsim/internal/webhooks"
)

// Server bundles the service dependencies behind the HTTP handlers.
type Server struct {
	Cfg     config.Config
	Store   store.Store
	Opt     *opt.Optimizer
	Tracker *track.Tracker
	Pub     *webhooks.Publisher
	Broker  EventBroker
}

// NewServer wires a Server from configuration. An empty databaseUrl gets
// the in-memory store; an empty redisUrl gets the in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.Server.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.Server.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s = pg
	}

	var broker EventBroker
	if cfg.Server.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.Server.RedisURL); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	matrix := geo.NewMatrix(cfg.Optimizer.CacheSize)
	tracker := track.New(cfg.Constraint.AverageSpeedKph, cfg.Constraint.DeliveryServiceMin)

	srv := &Server{
		Cfg:     cfg,
		Store:   s,
		Opt:     opt.New(cfg.Constraint, matrix),
		Tracker: tracker,
		Pub:     webhooks.NewPublisher(s),
		Broker:  broker,
	}
	tracker.OnEvent(srv.publishTrackEvent)
	metrics.RegisterDefault()
	return srv, nil
}

// publishTrackEvent bridges tracker callbacks onto the stream broker.
func (s *Server) publishTrackEvent(event string, data any) {
	switch d := data.(type) {
	case track.Position:
		s.Broker.Publish(d.VehicleID, StreamEvent{Type: event, Data: map[string]any{
			"vehicleId": d.VehicleID,
			"lat":       d.Location.Lat,
			"lng":       d.Location.Lng,
			"speedKph":  d.SpeedKph,
			"heading":   d.Heading,
			"ts":        d.Timestamp,
		}})
	case track.StopEvent:
		s.Broker.Publish(d.VehicleID, StreamEvent{Type: event, Data: map[string]any{
			"vehicleId": d.VehicleID,
			"orderId":   d.OrderID,
		}})
	}
}

// Routes builds the full HTTP handler, middleware included.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/orders", s.OrdersHandler)
	mux.HandleFunc("/v1/orders/", s.OrderByIDHandler)
	mux.HandleFunc("/v1/vehicles", s.VehiclesHandler)
	mux.HandleFunc("/v1/vehicles/", s.VehicleByIDHandler)

	mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("/v1/validate", s.ValidateHandler)
	mux.HandleFunc("/v1/simulate", s.SimulateHandler)
	mux.HandleFunc("/v1/simulations", s.SimulationsHandler)
	mux.HandleFunc("/v1/simulations/", s.SimulationByIDHandler)
	mux.HandleFunc("/v1/scenarios", s.ScenariosHandler)

	mux.HandleFunc("/v1/routes", s.RoutesIndexHandler)
	mux.HandleFunc("/v1/routes/", s.RouteByIDHandler)

	mux.HandleFunc("/v1/track/stream", s.TrackStreamHandler)

	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

	mux.HandleFunc("/v1/admin/plan-metrics", s.PlanMetricsHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)

	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return logMiddleware(metricsMiddleware(s.rateLimitMiddleware(mux)))
}

// NewWebhookWorker creates the background delivery worker for this server.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
