package antispam

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gateHeldCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antispam_gate_held_total",
	Help: "Total number of gate evaluations that held content",
})

var gateAllowedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antispam_gate_allowed_total",
	Help: "Total number of gate evaluations that allowed content",
})

var gateBypassCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antispam_gate_bypass_total",
	Help: "Total number of gate evaluations bypassed for trusted or staff accounts",
})

var gateFailOpenCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antispam_gate_fail_open_total",
	Help: "Total number of cache-backed checks skipped due to store errors",
})

var gateReasonCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "antispam_gate_reasons_total",
	Help: "Gate hold reasons by rule",
}, []string{"reason"})
