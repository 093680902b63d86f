package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Engine ──────────────────────────────────────────────────────────────────

	EngineCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autopilot",
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Cycle runs, labelled by outcome (ran, rate_limited, autopilot_off).",
	}, []string{"result"})

	EngineTasksGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autopilot",
		Subsystem: "engine",
		Name:      "tasks_generated_total",
		Help:      "Brand-new tasks created by reconciliation.",
	})

	EngineOpenTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "autopilot",
		Subsystem: "engine",
		Name:      "open_tasks",
		Help:      "Open tasks in the active workspace after the last cycle.",
	}, []string{"workspace"})

	EngineRoutesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autopilot",
		Subsystem: "engine",
		Name:      "routes_emitted_total",
		Help:      "Proactive navigation routes emitted.",
	})

	// ─── Notification sync ───────────────────────────────────────────────────────

	NotifySyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autopilot",
		Subsystem: "notify",
		Name:      "syncs_total",
		Help:      "Notification sync attempts, labelled by outcome (synced, debounced, disabled, denied, auth_error).",
	}, []string{"result"})

	NotifyScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autopilot",
		Subsystem: "notify",
		Name:      "scheduled_total",
		Help:      "Notification requests scheduled.",
	})

	NotifyCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autopilot",
		Subsystem: "notify",
		Name:      "cancelled_total",
		Help:      "Pending notification requests cancelled before rescheduling.",
	})

	// ─── Signal intake ───────────────────────────────────────────────────────────

	SignalsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autopilot",
		Subsystem: "signals",
		Name:      "consumed_total",
		Help:      "Signal snapshots consumed, labelled by outcome (processed, malformed, throttled, error).",
	}, []string{"result"})
)
