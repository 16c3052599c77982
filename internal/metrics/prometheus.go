package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	refresh  *prometheus.CounterVec
	replays  prometheus.Counter
	resets   *prometheus.CounterVec
}

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autohead_gateway_requests_total",
		Help: "Requests dispatched by the gateway, by method and status (0 = transport error).",
	}, []string{"method", "status"})
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autohead_gateway_request_duration_seconds",
		Help:    "Round-trip duration of gateway dispatches.",
		Buckets: prometheus.DefBuckets,
	})
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autohead_gateway_refresh_total",
		Help: "Access-token refresh attempts by result.",
	}, []string{"result"})
	replaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autohead_gateway_replays_total",
		Help: "Requests replayed after a successful refresh.",
	})
	sessionResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autohead_session_resets_total",
		Help: "Sessions forced back to anonymous, by reason.",
	}, []string{"reason"})
)

func NewPrometheusObserver() GatewayObserver {
	return &prometheusObserver{
		requests: requestsTotal,
		duration: requestDuration,
		refresh:  refreshTotal,
		replays:  replaysTotal,
		resets:   sessionResets,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) ObserveRequest(method string, status int, duration float64) {
	p.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	p.duration.Observe(duration)
}

func (p *prometheusObserver) RecordRefresh(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	p.refresh.WithLabelValues(result).Inc()
}

func (p *prometheusObserver) RecordReplay() {
	p.replays.Inc()
}

func (p *prometheusObserver) RecordSessionReset(reason string) {
	p.resets.WithLabelValues(reason).Inc()
}
