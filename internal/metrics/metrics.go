// Package metrics registers the controller's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WaterVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "irrigation_water_volume_liters_total",
		Help: "Total water volume delivered, by zone.",
	}, []string{"zone"})

	FlowRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "irrigation_flow_rate_lpm",
		Help: "Most recent instantaneous flow rate in liters per minute.",
	})

	TankLevelPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "irrigation_tank_level_percent",
		Help: "Usable tank level percentage, by tank.",
	}, []string{"tank"})

	LeakEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "irrigation_leak_events_total",
		Help: "Number of leak detections since startup.",
	})

	ZoneActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "irrigation_zone_active",
		Help: "1 while the zone is running, 0 otherwise.",
	}, []string{"zone"})
)
