package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - коллекторы синхронизатора и машины состояний.
// Методы безопасны для nil-получателя, чтобы компоненты можно было собирать без метрик.
type Metrics struct {
	eventsApplied *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
	reseeds       *prometheus.CounterVec
	commands      *prometheus.CounterVec
	pending       prometheus.Gauge
}

// New регистрирует коллекторы в prometheus.DefaultRegisterer
func New() (*Metrics, error) {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry регистрирует коллекторы в указанном registerer.
// Уже зарегистрированные коллекторы переиспользуются.
func NewWithRegistry(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "changefeed_events_applied_total",
		Help: "Change events applied to a materialized cache",
	}, []string{"entity", "operation"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "changefeed_events_dropped_total",
		Help: "Change events dropped without touching the cache",
	}, []string{"entity", "reason"})
	reseeds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "changefeed_reseeds_total",
		Help: "Full snapshot loads performed by a subscription",
	}, []string{"entity"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_commands_total",
		Help: "Dispatch lifecycle commands by final outcome",
	}, []string{"command", "outcome"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_pending_commands",
		Help: "Commands written to storage and awaiting confirmation from the change feed",
	})

	var err error
	if applied, err = register(reg, applied); err != nil {
		return nil, err
	}
	if dropped, err = register(reg, dropped); err != nil {
		return nil, err
	}
	if reseeds, err = register(reg, reseeds); err != nil {
		return nil, err
	}
	if commands, err = register(reg, commands); err != nil {
		return nil, err
	}
	if pending, err = register(reg, pending); err != nil {
		return nil, err
	}

	return &Metrics{
		eventsApplied: applied,
		eventsDropped: dropped,
		reseeds:       reseeds,
		commands:      commands,
		pending:       pending,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) EventApplied(entity, operation string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(entity, operation).Inc()
}

func (m *Metrics) EventDropped(entity, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(entity, reason).Inc()
}

func (m *Metrics) Reseeded(entity string) {
	if m == nil {
		return
	}
	m.reseeds.WithLabelValues(entity).Inc()
}

func (m *Metrics) CommandFinished(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) PendingAdd(delta float64) {
	if m == nil {
		return
	}
	m.pending.Add(delta)
}
