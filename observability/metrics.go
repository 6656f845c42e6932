// Package observability exposes engine metrics and health probes.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"stakehouse/events"
	"stakehouse/scheduler"
)

// Metrics holds the engine's Prometheus collectors on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	RoomsCreated      *prometheus.CounterVec
	PlayersJoined     *prometheus.CounterVec
	RoomTransitions   *prometheus.CounterVec
	RoomsSettled      *prometheus.CounterVec
	SettledPot        *prometheus.CounterVec
	SettledPaid       *prometheus.CounterVec
	LedgerEntries     *prometheus.CounterVec
	SchedulerJobs     *prometheus.CounterVec
	SchedulerDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RoomsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakehouse_rooms_created_total",
			Help: "Rooms created, including lobby replacements",
		}, []string{"kind", "game"}),

		PlayersJoined: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakehouse_players_joined_total",
			Help: "Stakes locked into rooms",
		}, []string{"currency", "game"}),

		RoomTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakehouse_room_transitions_total",
			Help: "Room state machine transitions",
		}, []string{"from", "to"}),

		RoomsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakehouse_rooms_settled_total",
			Help: "Rooms settled",
		}, []string{"game"}),

		SettledPot: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakehouse_settled_pot_nano_total",
			Help: "Sum of settled pots in nano units",
		}, []string{"currency"}),

		SettledPaid: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakehouse_settled_paid_nano_total",
			Help: "Sum of settlement payouts in nano units",
		}, []string{"currency"}),

		LedgerEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakehouse_ledger_entries_total",
			Help: "Ledger entries appended",
		}, []string{"currency", "type"}),

		SchedulerJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stakehouse_scheduler_jobs_total",
			Help: "Processed trigger jobs by result",
		}, []string{"kind", "result"}),

		SchedulerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stakehouse_scheduler_job_duration_seconds",
			Help:    "Trigger handler duration",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
	}
}

// Attach subscribes the collectors to every committed event on bus
func (m *Metrics) Attach(bus *events.Bus) {
	bus.SubscribeAll(func(ctx context.Context, event events.Event) {
		m.Observe(event)
	})
}

// Observe records one domain event
func (m *Metrics) Observe(event events.Event) {
	switch e := event.(type) {
	case events.RoomCreatedEvent:
		m.RoomsCreated.WithLabelValues(string(e.Kind), string(e.Game)).Inc()
	case events.PlayerJoinedEvent:
		m.PlayersJoined.WithLabelValues(string(e.Currency), string(e.Game)).Inc()
	case events.RoomStatusChangedEvent:
		m.RoomTransitions.WithLabelValues(string(e.OldStatus), string(e.NewStatus)).Inc()
	case events.RoomSettledEvent:
		m.RoomsSettled.WithLabelValues(string(e.Outcome.Game)).Inc()
		m.SettledPot.WithLabelValues(string(e.Currency)).Add(float64(e.Pot))
		m.SettledPaid.WithLabelValues(string(e.Currency)).Add(float64(e.TotalPaid))
	case events.LedgerEntryPostedEvent:
		m.LedgerEntries.WithLabelValues(string(e.Currency), string(e.EntryType)).Inc()
	}
}

// ObserveJob implements scheduler.JobObserver
func (m *Metrics) ObserveJob(kind scheduler.Kind, result string, elapsed time.Duration) {
	m.SchedulerJobs.WithLabelValues(string(kind), result).Inc()
	m.SchedulerDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

var _ scheduler.JobObserver = (*Metrics)(nil)
