package record

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusRecorder struct {
	rsi     *prometheus.GaugeVec
	ewma    *prometheus.GaugeVec
	price   *prometheus.GaugeVec
	signals *prometheus.CounterVec
}

// NewPrometheusRecorder registers the indicator metrics on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	p := &PrometheusRecorder{
		rsi: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rsicross_rsi", Help: "Latest Wilder RSI per symbol"},
			[]string{"symbol"},
		),
		ewma: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rsicross_rsi_ewma", Help: "Latest exponentially weighted mean of RSI per symbol"},
			[]string{"symbol"},
		),
		price: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "rsicross_price", Help: "Latest close per symbol"},
			[]string{"symbol"},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rsicross_signals_total", Help: "Crossover signals observed"},
			[]string{"symbol", "direction"},
		),
	}
	reg.MustRegister(p.rsi, p.ewma, p.price, p.signals)
	return p
}

func (p *PrometheusRecorder) Record(_ context.Context, entry Entry) error {
	setOrDelete(p.rsi, entry.Symbol, entry.RSI.TakeOr(0), entry.RSI.IsSome())
	setOrDelete(p.ewma, entry.Symbol, entry.EWMA.TakeOr(0), entry.EWMA.IsSome())
	p.price.WithLabelValues(entry.Symbol).Set(entry.Price)
	if entry.Direction != "" {
		p.signals.WithLabelValues(entry.Symbol, entry.Direction).Inc()
	}
	return nil
}

func setOrDelete(vec *prometheus.GaugeVec, symbol string, value float64, ok bool) {
	if !ok {
		vec.DeleteLabelValues(symbol)
		return
	}
	vec.WithLabelValues(symbol).Set(value)
}

// Serve exposes /metrics for gatherer on addr in the background.
func Serve(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
