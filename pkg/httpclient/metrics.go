package httpclient

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Metrics holds the Prometheus collectors of a Client. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	hostState *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg. Collectors that
// are already registered are reused, so several clients can share a registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_mirror_api_requests_total",
			Help: "Requests sent to the search API, by host and outcome",
		},
		[]string{"host", "outcome"},
	)
	hostState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "search_mirror_api_host_state",
			Help: "Host availability as seen by the client (0=up, 1=probing, 2=down)",
		},
		[]string{"host"},
	)

	var err error
	if requests, err = registerOrReuse(reg, requests); err != nil {
		return nil, err
	}
	if hostState, err = registerOrReuse(reg, hostState); err != nil {
		return nil, err
	}

	return &Metrics{requests: requests, hostState: hostState}, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) recordRequest(host, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(host, outcome).Inc()
}

func (m *Metrics) recordHostState(host string, state gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.hostState.WithLabelValues(host).Set(v)
}
