package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_ticks_total", Help: "Count of simulation ticks processed"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sim_orders_total", Help: "Orders dispatched to the exchange"},
		[]string{"type", "side"},
	)
	CancelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_cancels_total", Help: "Cancel intents dispatched"},
	)
	DepositsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_deposits_total", Help: "Deposit intents dispatched"},
	)
	FillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sim_fills_total", Help: "Trades executed by the exchange"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, OrdersTotal, CancelsTotal, DepositsTotal, FillsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
