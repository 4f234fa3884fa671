package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetsim/internal/geo"
	"fleetsim/internal/model"
)

// Postgres is the durable store, selected when DATABASE_URL is set.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Ping checks connectivity (readiness probe).
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (id, pickup_lat, pickup_lng, delivery_lat, delivery_lng,
			window_start, window_end, weight_kg, volume_m3, status, zone, route_id, arrival_min, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.Pickup.Lat, o.Pickup.Lng, o.Delivery.Lat, o.Delivery.Lng,
		o.Window.Earliest, o.Window.Latest, o.WeightKg, o.VolumeM3,
		o.Status, nullIfEmpty(o.Zone), nullIfEmpty(o.AssignedRoute), o.ArrivalTimeMin, o.CreatedAt)
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

const orderCols = `id, pickup_lat, pickup_lng, delivery_lat, delivery_lng,
	window_start, window_end, weight_kg, volume_m3, status, zone, route_id, arrival_min, created_at`

func scanOrder(row interface{ Scan(...any) error }) (model.Order, error) {
	var o model.Order
	var zone, routeID sql.NullString
	err := row.Scan(&o.ID, &o.Pickup.Lat, &o.Pickup.Lng, &o.Delivery.Lat, &o.Delivery.Lng,
		&o.Window.Earliest, &o.Window.Latest, &o.WeightKg, &o.VolumeM3,
		&o.Status, &zone, &routeID, &o.ArrivalTimeMin, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	o.Zone = zone.String
	o.AssignedRoute = routeID.String
	return o, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

func (p *Postgres) ListOrders(ctx context.Context, status, cursor string, limit int) ([]model.Order, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	switch {
	case status != "" && cursor != "":
		rows, err = p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders WHERE status=$1 AND id > $2 ORDER BY id LIMIT $3`, status, cursor, limit)
	case status != "":
		rows, err = p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders WHERE status=$1 ORDER BY id LIMIT $2`, status, limit)
	case cursor != "":
		rows, err = p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
	default:
		rows, err = p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, id, status, routeID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE orders SET status=$1, route_id=COALESCE(NULLIF($2,''), route_id) WHERE id=$3`, status, routeID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	var endLat, endLng any
	if v.End != nil {
		endLat, endLng = v.End.Lat, v.End.Lng
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, max_weight_kg, max_volume_m3, start_lat, start_lng, end_lat, end_lng, avail_start, avail_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.MaxWeightKg, v.MaxVolumeM3, v.Start.Lat, v.Start.Lng, endLat, endLng,
		nullIfZeroTime(v.Available.Earliest), nullIfZeroTime(v.Available.Latest))
	if err != nil {
		return model.Vehicle{}, err
	}
	return v, nil
}

func scanVehicle(row interface{ Scan(...any) error }) (model.Vehicle, error) {
	var v model.Vehicle
	var endLat, endLng sql.NullFloat64
	var availStart, availEnd sql.NullTime
	err := row.Scan(&v.ID, &v.MaxWeightKg, &v.MaxVolumeM3, &v.Start.Lat, &v.Start.Lng,
		&endLat, &endLng, &availStart, &availEnd)
	if err != nil {
		return v, err
	}
	if endLat.Valid && endLng.Valid {
		v.End = &geo.Point{Lat: endLat.Float64, Lng: endLng.Float64}
	}
	if availStart.Valid {
		v.Available.Earliest = availStart.Time
	}
	if availEnd.Valid {
		v.Available.Latest = availEnd.Time
	}
	return v, nil
}

const vehicleCols = `id, max_weight_kg, max_volume_m3, start_lat, start_lng, end_lat, end_lng, avail_start, avail_end`

func (p *Postgres) GetVehicle(ctx context.Context, id string) (model.Vehicle, error) {
	v, err := scanVehicle(p.db.QueryRowContext(ctx, `SELECT `+vehicleCols+` FROM vehicles WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, ErrNotFound
	}
	return v, err
}

func (p *Postgres) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+vehicleCols+` FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveRoutes(ctx context.Context, routes []model.Route) ([]model.Route, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]model.Route, 0, len(routes))
	for _, rt := range routes {
		if rt.ID == "" {
			rt.ID = uuid.New().String()
		}
		if rt.CreatedAt.IsZero() {
			rt.CreatedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO routes (id, vehicle_id, orders, stops, distance_km, time_min, weight_used_kg, volume_used_m3, break_count, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			rt.ID, rt.VehicleID, toJSON(rt.Orders), toJSON(rt.Stops),
			rt.DistanceKm, rt.TimeMin, rt.WeightUsedKg, rt.VolumeUsedM3, rt.BreakCount, rt.CreatedAt)
		if err != nil {
			return nil, err
		}
		for _, oid := range rt.Orders {
			if _, err = tx.ExecContext(ctx, `UPDATE orders SET status=$1, route_id=$2 WHERE id=$3`,
				model.OrderAssigned, rt.ID, oid); err != nil {
				return nil, err
			}
		}
		out = append(out, rt)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

const routeCols = `id, vehicle_id, orders, stops, distance_km, time_min, weight_used_kg, volume_used_m3, break_count, created_at`

func scanRoute(row interface{ Scan(...any) error }) (model.Route, error) {
	var rt model.Route
	var ordersJSON, stopsJSON []byte
	err := row.Scan(&rt.ID, &rt.VehicleID, &ordersJSON, &stopsJSON,
		&rt.DistanceKm, &rt.TimeMin, &rt.WeightUsedKg, &rt.VolumeUsedM3, &rt.BreakCount, &rt.CreatedAt)
	if err != nil {
		return rt, err
	}
	if err := json.Unmarshal(ordersJSON, &rt.Orders); err != nil {
		return rt, err
	}
	if err := json.Unmarshal(stopsJSON, &rt.Stops); err != nil {
		return rt, err
	}
	return rt, nil
}

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.Route, error) {
	rt, err := scanRoute(p.db.QueryRowContext(ctx, `SELECT `+routeCols+` FROM routes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, ErrNotFound
	}
	return rt, err
}

func (p *Postgres) ListRoutes(ctx context.Context, cursor string, limit int) ([]model.Route, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+routeCols+` FROM routes WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+routeCols+` FROM routes ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Route{}
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, rt)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, runID string, metrics map[string]any) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO plan_metrics (run_id, metrics, created_at) VALUES ($1,$2,$3)
		 ON CONFLICT (run_id) DO UPDATE SET metrics=EXCLUDED.metrics`,
		runID, toJSON(metrics), time.Now().UTC())
	return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `SELECT run_id, metrics FROM plan_metrics ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		var runID string
		var raw []byte
		if err := rows.Scan(&runID, &raw); err != nil {
			return nil, err
		}
		row := map[string]any{}
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, err
		}
		row["runId"] = runID
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveSimulationResult(ctx context.Context, res model.SimulateResult) error {
	if res.RunID == "" {
		res.RunID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO simulation_results (run_id, result, created_at) VALUES ($1,$2,$3)
		 ON CONFLICT (run_id) DO UPDATE SET result=EXCLUDED.result`,
		res.RunID, toJSON(res), res.CreatedAt)
	return err
}

func (p *Postgres) GetSimulationResult(ctx context.Context, runID string) (model.SimulateResult, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT result FROM simulation_results WHERE run_id=$1`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SimulateResult{}, ErrNotFound
	}
	if err != nil {
		return model.SimulateResult{}, err
	}
	var res model.SimulateResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return model.SimulateResult{}, err
	}
	return res, nil
}

func (p *Postgres) ListSimulationResults(ctx context.Context, cursor string, limit int) ([]model.SimulateResult, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT result FROM simulation_results WHERE run_id > $1 ORDER BY run_id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT result FROM simulation_results ORDER BY run_id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.SimulateResult{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, "", err
		}
		var res model.SimulateResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, "", err
		}
		out = append(out, res)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].RunID
	}
	return out, next, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		s.ID, s.URL, toJSON(s.Events), s.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func scanSubscription(row interface{ Scan(...any) error }) (model.Subscription, error) {
	var s model.Subscription
	var eventsJSON []byte
	if err := row.Scan(&s.ID, &s.URL, &eventsJSON, &s.Secret); err != nil {
		return s, err
	}
	if err := json.Unmarshal(eventsJSON, &s.Events); err != nil {
		return s, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions WHERE events @> $1 ORDER BY id`, toJSON([]string{eventType}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions WHERE id > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`,
		id, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, subscription_id, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries
		WHERE status IN ('pending','retry') AND next_attempt_at <= now()
		ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx, `
			UPDATE webhook_deliveries
			SET status='delivered', attempts=attempts+1, response_code=$1, latency_ms=$2, delivered_at=now()
			WHERE id=$3`, responseCode, latencyMs, id)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status='retry', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3, next_attempt_at=$4
		WHERE id=$5`, lastError, responseCode, latencyMs, next, id)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status='failed', last_error=$1, response_code=$2, latency_ms=$3
		WHERE id=$4`, lastError, responseCode, latencyMs, id)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, subscription_id, event_type, url, status, attempts,
		next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0)
		FROM webhook_deliveries`
	args := []any{}
	where := ""
	if status != "" {
		where = ` WHERE status=$1`
		args = append(args, status)
	}
	if cursor != "" {
		if where == "" {
			where = ` WHERE id > $1`
		} else {
			where += ` AND id > $2`
		}
		args = append(args, cursor)
	}
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, q+where+` ORDER BY id LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Status, &d.Attempts,
			&d.NextAttemptAt, &d.LastError, &d.ResponseCode, &d.LatencyMs); err != nil {
			return nil, "", err
		}
		out = append(out, d)
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

