package sim

import (
	"log"
	"math"
	"math/rand"

	"fleetsim/internal/constraint"
	"fleetsim/internal/geo"
	"fleetsim/internal/model"
)

// Kind identifies a simulation event type.
type Kind string

const (
	KindOrderArrival     Kind = "order_arrival"
	KindPickupStart      Kind = "pickup_start"
	KindPickupComplete   Kind = "pickup_complete"
	KindDeliveryStart    Kind = "delivery_start"
	KindDeliveryComplete Kind = "delivery_complete"
	KindBreakStart       Kind = "break_start"
	KindBreakEnd         Kind = "break_end"
	KindVehicleAvailable Kind = "vehicle_available"
	KindReplanTrigger    Kind = "replan_trigger"
	KindSimulationEnd    Kind = "simulation_end"
)

// Event is one scheduled occurrence on the simulation clock. Time is in
// minutes from run start. EntityID names the order (or "system"); VehicleID
// is set for events tied to a vehicle.
type Event struct {
	Time      float64   `json:"time"`
	Kind      Kind      `json:"kind"`
	EntityID  string    `json:"entityId"`
	VehicleID string    `json:"vehicleId,omitempty"`
	Location  geo.Point `json:"location,omitempty"`

	seq uint64
}

// Order lifecycle phases.
type OrderPhase string

const (
	PhasePending   OrderPhase = "pending"
	PhaseArrived   OrderPhase = "arrived"
	PhaseAssigned  OrderPhase = "assigned"
	PhaseInTransit OrderPhase = "in_transit"
	PhaseDelivered OrderPhase = "delivered"
	PhaseFailed    OrderPhase = "failed"
)

// Vehicle lifecycle phases.
type VehiclePhase string

const (
	VehicleIdle      VehiclePhase = "idle"
	VehicleDriving   VehiclePhase = "driving"
	VehicleServicing VehiclePhase = "servicing"
	VehicleOnBreak   VehiclePhase = "on_break"
)

// State is the accumulated result of a run. Read-only once Run returns.
type State struct {
	CurrentTime     float64            `json:"currentTime"`
	OrdersCreated   int                `json:"ordersCreated"`
	OrdersCompleted int                `json:"ordersCompleted"`
	OrdersFailed    int                `json:"ordersFailed"`
	OnTime          int                `json:"onTime"`
	TotalDistanceKm float64            `json:"totalDistanceKm"`
	TotalVehicleHrs float64            `json:"totalVehicleHrs"`
	OrderDelays     map[string]float64 `json:"orderDelays"`
	VehicleDistKm   map[string]float64 `json:"vehicleDistanceKm"`
	VehicleTimeMin  map[string]float64 `json:"vehicleTimeMin"`
	VehicleUtilPct  map[string]float64 `json:"vehicleUtilization"`
}

func newState() *State {
	return &State{
		OrderDelays:    map[string]float64{},
		VehicleDistKm:  map[string]float64{},
		VehicleTimeMin: map[string]float64{},
		VehicleUtilPct: map[string]float64{},
	}
}

// Handler receives an event after its state transition has committed.
type Handler func(Event)

// Replanner is invoked on replan_trigger events so a caller can inject
// fresh routes mid-run (dynamic scenarios).
type Replanner func(e *Engine, ev Event)

// Engine is a deterministic discrete-event simulator. All randomness comes
// from the single seeded rng, so identical seed + identical schedule
// reproduces an identical trajectory.
type Engine struct {
	cfg   constraint.Config
	rng   *rand.Rand
	queue eventQueue
	state *State

	// JitterPct, when > 0, perturbs service durations scheduled through
	// ReplayRoutes by up to ±JitterPct percent.
	JitterPct float64

	subs      map[Kind][]Handler
	replanner Replanner

	orders       map[string]model.Order
	orderPhase   map[string]OrderPhase
	vehiclePhase map[string]VehiclePhase
}

// New returns an engine with an empty schedule.
func New(cfg constraint.Config, seed int64) *Engine {
	return &Engine{
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(seed)),
		state:        newState(),
		subs:         map[Kind][]Handler{},
		orders:       map[string]model.Order{},
		orderPhase:   map[string]OrderPhase{},
		vehiclePhase: map[string]VehiclePhase{},
	}
}

// Subscribe registers fn for a kind. Handlers run synchronously in
// registration order, after the transition for the event has been applied.
func (e *Engine) Subscribe(kind Kind, fn Handler) {
	e.subs[kind] = append(e.subs[kind], fn)
}

// SetReplanner installs the replan_trigger hook.
func (e *Engine) SetReplanner(fn Replanner) { e.replanner = fn }

// Schedule inserts an event into the queue.
func (e *Engine) Schedule(ev Event) { e.queue.push(ev) }

// Pending reports how many events are queued.
func (e *Engine) Pending() int { return e.queue.len() }

// State returns the accumulated state. Callers must not mutate it while a
// run is in progress.
func (e *Engine) State() *State { return e.state }

// OrderPhase reports an order's current lifecycle phase.
func (e *Engine) OrderPhase(orderID string) OrderPhase {
	if p, ok := e.orderPhase[orderID]; ok {
		return p
	}
	return PhasePending
}

// VehiclePhase reports a vehicle's current lifecycle phase.
func (e *Engine) VehiclePhase(vehicleID string) VehiclePhase {
	if p, ok := e.vehiclePhase[vehicleID]; ok {
		return p
	}
	return VehicleIdle
}

// Run processes events in (time, insertion) order until the queue drains or
// the next event is past endMin. An empty schedule gets a single
// simulation_end marker so the clock still advances to endMin.
func (e *Engine) Run(endMin float64) *State {
	if e.queue.len() == 0 {
		e.Schedule(Event{Time: endMin, Kind: KindSimulationEnd, EntityID: "system"})
	}
	for {
		ev, ok := e.queue.pop()
		if !ok {
			break
		}
		if ev.Time > endMin {
			break
		}
		e.state.CurrentTime = ev.Time
		e.transition(ev)
		for _, fn := range e.subs[ev.Kind] {
			fn(ev)
		}
	}
	return e.state
}

// Reset clears schedule and state and reseeds the rng.
func (e *Engine) Reset(seed int64) {
	e.queue.reset()
	e.state = newState()
	e.rng = rand.New(rand.NewSource(seed))
	e.orders = map[string]model.Order{}
	e.orderPhase = map[string]OrderPhase{}
	e.vehiclePhase = map[string]VehiclePhase{}
}

// transition applies the entity state machine for one event. Unexpected
// transitions are logged and skipped; the run never aborts.
func (e *Engine) transition(ev Event) {
	switch ev.Kind {
	case KindOrderArrival:
		e.orderPhase[ev.EntityID] = PhaseArrived
		e.state.OrdersCreated++
	case KindPickupStart:
		e.orderPhase[ev.EntityID] = PhaseAssigned
		e.setVehicle(ev.VehicleID, VehicleServicing)
	case KindPickupComplete:
		e.orderPhase[ev.EntityID] = PhaseInTransit
		e.setVehicle(ev.VehicleID, VehicleDriving)
	case KindDeliveryStart:
		e.setVehicle(ev.VehicleID, VehicleServicing)
	case KindDeliveryComplete:
		e.completeDelivery(ev)
		e.setVehicle(ev.VehicleID, VehicleDriving)
	case KindBreakStart:
		e.setVehicle(ev.VehicleID, VehicleOnBreak)
	case KindBreakEnd:
		e.setVehicle(ev.VehicleID, VehicleDriving)
	case KindVehicleAvailable:
		e.setVehicle(ev.VehicleID, VehicleIdle)
	case KindReplanTrigger:
		if e.replanner != nil {
			e.replanner(e, ev)
		}
	case KindSimulationEnd:
		// clock advance only
	default:
		log.Printf("sim: unknown event kind %q at t=%.1f", ev.Kind, ev.Time)
	}
}

func (e *Engine) setVehicle(id string, p VehiclePhase) {
	if id == "" {
		return
	}
	e.vehiclePhase[id] = p
}

// completeDelivery closes out an order: late against its window's closing
// minute-of-day marks it failed, otherwise delivered. Delay is recorded
// either way (zero when on time).
func (e *Engine) completeDelivery(ev Event) {
	delay := 0.0
	if o, ok := e.orders[ev.EntityID]; ok {
		latest := float64(o.Window.Latest.Hour()*60 + o.Window.Latest.Minute())
		if latest > 0 && minuteOfDay(ev.Time) > latest {
			delay = minuteOfDay(ev.Time) - latest
		}
	}
	e.state.OrderDelays[ev.EntityID] = delay
	if delay > 0 {
		e.orderPhase[ev.EntityID] = PhaseFailed
		e.state.OrdersFailed++
		return
	}
	e.orderPhase[ev.EntityID] = PhaseDelivered
	e.state.OrdersCompleted++
	e.state.OnTime++
}

func minuteOfDay(t float64) float64 {
	return math.Mod(t, 24*60)
}

// ReplayRoutes converts optimizer output into the initial event schedule:
// an arrival per order, pickup/delivery start+complete per stop, and a
// vehicle_available marker when each route finishes. Per-vehicle distance,
// time, and utilization aggregates are seeded from the route records.
func (e *Engine) ReplayRoutes(routes []model.Route, orders []model.Order, vehicles []model.Vehicle) {
	caps := make(map[string]model.Vehicle, len(vehicles))
	for _, v := range vehicles {
		caps[v.ID] = v
	}
	for _, o := range orders {
		e.orders[o.ID] = o
		e.Schedule(Event{Time: o.ArrivalTimeMin, Kind: KindOrderArrival, EntityID: o.ID, Location: o.Pickup})
	}
	for _, rt := range routes {
		if v, ok := caps[rt.VehicleID]; ok {
			e.scheduleBreaks(rt, v.Start)
		}
		for _, st := range rt.Stops {
			kindStart, kindDone := KindPickupStart, KindPickupComplete
			service := st.ServiceMin
			if service == 0 {
				service = e.cfg.PickupServiceMin
			}
			if st.Kind == model.StopDelivery {
				kindStart, kindDone = KindDeliveryStart, KindDeliveryComplete
				if st.ServiceMin == 0 {
					service = e.cfg.DeliveryServiceMin
				}
			}
			service = e.jitter(service)
			e.Schedule(Event{Time: st.ArrivalMin, Kind: kindStart, EntityID: st.OrderID, VehicleID: rt.VehicleID, Location: st.Location})
			e.Schedule(Event{Time: st.ArrivalMin + service, Kind: kindDone, EntityID: st.OrderID, VehicleID: rt.VehicleID, Location: st.Location})
		}
		e.Schedule(Event{Time: rt.TimeMin, Kind: KindVehicleAvailable, EntityID: rt.VehicleID, VehicleID: rt.VehicleID})

		e.state.VehicleDistKm[rt.VehicleID] += rt.DistanceKm
		e.state.VehicleTimeMin[rt.VehicleID] += rt.TimeMin
		e.state.TotalDistanceKm += rt.DistanceKm
		e.state.TotalVehicleHrs += rt.TimeMin / 60
		if v, ok := caps[rt.VehicleID]; ok {
			e.state.VehicleUtilPct[rt.VehicleID] = Utilization(v.MaxWeightKg, v.MaxVolumeM3, rt.WeightUsedKg, rt.VolumeUsedM3)
		}
	}
}

// scheduleBreaks re-derives the planner's mandatory-break placement from the
// stop sequence and schedules a break_start/break_end pair per break. The
// planner inserts a break before the pickup leg of the order that would push
// drive time past the limit, so the pair lands between the previous
// departure and that pickup's arrival.
func (e *Engine) scheduleBreaks(rt model.Route, start geo.Point) {
	if rt.BreakCount == 0 || e.cfg.BreakAfterHours <= 0 {
		return
	}
	breakMin := e.cfg.MandatoryBreakHours * 60
	sinceBreak := 0.0
	loc := start
	for i := 0; i+1 < len(rt.Stops); i += 2 {
		pickup, delivery := rt.Stops[i], rt.Stops[i+1]
		toPickup := e.travelMin(loc, pickup.Location)
		travel := toPickup + e.travelMin(pickup.Location, delivery.Location)
		if sinceBreak+travel > e.cfg.BreakAfterHours*60 {
			at := pickup.ArrivalMin - toPickup - breakMin
			e.Schedule(Event{Time: at, Kind: KindBreakStart, EntityID: rt.VehicleID, VehicleID: rt.VehicleID, Location: loc})
			e.Schedule(Event{Time: at + breakMin, Kind: KindBreakEnd, EntityID: rt.VehicleID, VehicleID: rt.VehicleID, Location: loc})
			sinceBreak = 0
		}
		sinceBreak += travel
		loc = delivery.Location
	}
}

func (e *Engine) travelMin(a, b geo.Point) float64 {
	speed := e.cfg.AverageSpeedKph
	if speed <= 0 {
		speed = 40
	}
	d, err := geo.Distance(a, b)
	if err != nil {
		return 0
	}
	return d / speed * 60
}

func (e *Engine) jitter(min float64) float64 {
	if e.JitterPct <= 0 {
		return min
	}
	f := 1 + (e.rng.Float64()*2-1)*e.JitterPct/100
	return min * f
}
