// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Thermoquad/xyestat/pkg/xye"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// linkMetrics exports link health and unit readings for Prometheus.
// Exchange counts are counters read from the latest statistics snapshot.
type linkMetrics struct {
	registry *prometheus.Registry
	gauges   map[string]prometheus.Gauge

	mu    sync.Mutex
	stats xye.Statistics
}

func newLinkMetrics() *linkMetrics {
	m := &linkMetrics{
		registry: prometheus.NewRegistry(),
		gauges:   map[string]prometheus.Gauge{},
	}

	m.addCounter("xye_polls_sent_total", "Poll frames written", func(st xye.Statistics) uint64 { return st.PollsSent })
	m.addCounter("xye_commands_sent_total", "Control frames written", func(st xye.Statistics) uint64 { return st.CommandsSent })
	m.addCounter("xye_responses_total", "Valid responses received", func(st xye.Statistics) uint64 { return st.Responses })
	m.addCounter("xye_timeouts_total", "Exchanges that received no complete response", func(st xye.Statistics) uint64 { return st.Timeouts })
	m.addCounter("xye_checksum_errors_total", "Responses rejected for a bad checksum", func(st xye.Statistics) uint64 { return st.ChecksumErrors })
	m.addCounter("xye_malformed_frames_total", "Responses rejected for bad length or header", func(st xye.Statistics) uint64 { return st.MalformedFrames })
	m.addCounter("xye_write_errors_total", "Command frames that could not be written", func(st xye.Statistics) uint64 { return st.WriteErrors })
	m.addCounter("xye_stale_bytes_total", "Bytes discarded as leftovers of earlier exchanges", func(st xye.Statistics) uint64 { return st.StaleBytes })

	m.addGauge("xye_consecutive_timeouts", "Failed exchanges since the last valid response")
	m.addGauge("xye_last_response_timestamp_seconds", "Unix time of the last valid response")

	m.addGauge("xye_setpoint_fahrenheit", "Unit setpoint (°F)")
	m.addGauge("xye_inlet_temp_raw", "Inlet temperature byte T1")
	m.addGauge("xye_coil_a_temp_raw", "Coil A temperature byte T2A")
	m.addGauge("xye_coil_b_temp_raw", "Coil B temperature byte T2B")
	m.addGauge("xye_outside_temp_raw", "Outside temperature byte T3")
	m.addGauge("xye_fault_active", "1 while the unit reports any error or protection bit")

	for _, g := range m.gauges {
		m.registry.MustRegister(g)
	}
	return m
}

func (m *linkMetrics) addGauge(name, help string) {
	m.gauges[name] = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
}

func (m *linkMetrics) addCounter(name, help string, read func(xye.Statistics) uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, func() float64 {
		m.mu.Lock()
		defer m.mu.Unlock()
		return float64(read(m.stats))
	}))
}

func (m *linkMetrics) setGauge(name string, v float64) {
	if g, ok := m.gauges[name]; ok {
		g.Set(v)
	}
}

// Update copies one link event into the metrics
func (m *linkMetrics) Update(ev LinkEvent) {
	m.mu.Lock()
	m.stats = ev.Stats
	m.mu.Unlock()

	m.setGauge("xye_consecutive_timeouts", float64(ev.ConsecutiveTimeouts))

	if ev.Outcome != xye.OutcomeResponse || !ev.HasStatus {
		return
	}
	s := ev.Status
	m.setGauge("xye_last_response_timestamp_seconds", float64(ev.Time.Unix()))
	m.setGauge("xye_setpoint_fahrenheit", float64(s.Setpoint))
	m.setGauge("xye_inlet_temp_raw", float64(s.InletTemp))
	m.setGauge("xye_coil_a_temp_raw", float64(s.CoilATemp))
	m.setGauge("xye_coil_b_temp_raw", float64(s.CoilBTemp))
	m.setGauge("xye_outside_temp_raw", float64(s.OutsideTemp))
	if s.Fault.Active() {
		m.setGauge("xye_fault_active", 1)
	} else {
		m.setGauge("xye_fault_active", 0)
	}
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *linkMetrics) Serve(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
