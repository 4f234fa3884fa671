package store

import (
	"context"
	"errors"
	"time"

	"fleetsim/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context, status, cursor string, limit int) (items []model.Order, nextCursor string, err error)
	UpdateOrderStatus(ctx context.Context, id, status, routeID string) error

	// Vehicles
	CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (model.Vehicle, error)
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)

	// Routes
	SaveRoutes(ctx context.Context, routes []model.Route) ([]model.Route, error)
	GetRoute(ctx context.Context, id string) (model.Route, error)
	ListRoutes(ctx context.Context, cursor string, limit int) ([]model.Route, string, error)

	// Plan metrics (one row per optimizer run)
	SavePlanMetrics(ctx context.Context, runID string, metrics map[string]any) error
	ListPlanMetrics(ctx context.Context, limit int) ([]map[string]any, error)

	// Simulation results
	SaveSimulationResult(ctx context.Context, res model.SimulateResult) error
	GetSimulationResult(ctx context.Context, runID string) (model.SimulateResult, error)
	ListSimulationResults(ctx context.Context, cursor string, limit int) ([]model.SimulateResult, string, error)

	// Webhook subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error)
	RetryWebhookDelivery(ctx context.Context, id string) error
}

// WebhookDelivery is one queued webhook push and its delivery state.
type WebhookDelivery struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscriptionId"`
	EventType      string     `json:"eventType"`
	URL            string     `json:"url"`
	Secret         string     `json:"-"`
	Payload        []byte     `json:"-"`
	Status         string     `json:"status"` // pending, retry, delivered, failed
	Attempts       int        `json:"attempts"`
	NextAttemptAt  time.Time  `json:"nextAttemptAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	ResponseCode   int        `json:"responseCode,omitempty"`
	LatencyMs      int        `json:"latencyMs,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

var ErrNotFound = errors.New("not found")
