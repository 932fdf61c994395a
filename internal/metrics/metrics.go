// Package metrics provides Prometheus metrics for the login flow and room traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics interface used by services and handlers.
type Recorder interface {
	RecordLogin(provider, result string)
	RecordStateToken(result string)
	ConnectionOpened()
	ConnectionClosed()
	RecordRejectedConnection()
	RecordRoomEvent(eventType string)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	logins      *prometheus.CounterVec
	stateTokens *prometheus.CounterVec
	connections prometheus.Gauge
	rejected    prometheus.Counter
	roomEvents  *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomgate_oauth_logins_total",
			Help: "OAuth login attempts by provider and result",
		}, []string{"provider", "result"}),
		stateTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomgate_state_tokens_total",
			Help: "State tokens minted and redeemed, by result",
		}, []string{"result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomgate_ws_connections_active",
			Help: "Currently open websocket connections",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomgate_ws_rejected_total",
			Help: "Websocket upgrades rejected by the authorization gate",
		}),
		roomEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomgate_room_events_total",
			Help: "Room events broadcast, by type",
		}, []string{"type"}),
	}

	reg.MustRegister(
		c.logins,
		c.stateTokens,
		c.connections,
		c.rejected,
		c.roomEvents,
	)

	return c
}

// RecordLogin counts a completed login attempt.
func (c *Collector) RecordLogin(provider, result string) {
	c.logins.WithLabelValues(provider, result).Inc()
}

// RecordStateToken counts a state token outcome ("created", "redeemed", "rejected", "expired").
func (c *Collector) RecordStateToken(result string) {
	c.stateTokens.WithLabelValues(result).Inc()
}

// ConnectionOpened increments the active connection gauge.
func (c *Collector) ConnectionOpened() {
	c.connections.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (c *Collector) ConnectionClosed() {
	c.connections.Dec()
}

// RecordRejectedConnection counts an upgrade refused for a bad token.
func (c *Collector) RecordRejectedConnection() {
	c.rejected.Inc()
}

// RecordRoomEvent counts a broadcast room event.
func (c *Collector) RecordRoomEvent(eventType string) {
	c.roomEvents.WithLabelValues(eventType).Inc()
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop discards every measurement.
type Noop struct{}

// RecordLogin implements Recorder.
func (Noop) RecordLogin(string, string) {}

// RecordStateToken implements Recorder.
func (Noop) RecordStateToken(string) {}

// ConnectionOpened implements Recorder.
func (Noop) ConnectionOpened() {}

// ConnectionClosed implements Recorder.
func (Noop) ConnectionClosed() {}

// RecordRejectedConnection implements Recorder.
func (Noop) RecordRejectedConnection() {}

// RecordRoomEvent implements Recorder.
func (Noop) RecordRoomEvent(string) {}
