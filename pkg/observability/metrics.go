package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scout"

// Session outcomes recorded by SessionsFinished.
const (
	OutcomeDone      = "done"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of agent sessions currently running.",
	})
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finished_total",
		Help:      "Agent sessions that reached a terminal state, by outcome.",
	}, []string{"outcome"})
	StepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_steps_total",
		Help:      "Agent loop iterations executed.",
	})
	StepCapReached = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_step_cap_reached_total",
		Help:      "Sessions that ended because the step cap was reached.",
	})
	PromptTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_prompt_tokens",
		Help:      "Estimated prompt size in tokens per model call.",
		Buckets:   prometheus.ExponentialBuckets(64, 2, 12),
	})
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Tool invocations by tool and result.",
	}, []string{"tool", "result"})
	NavigationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "browser_navigation_seconds",
		Help:      "Time spent loading pages.",
		Buckets:   prometheus.DefBuckets,
	})
	BridgeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bridge_subscribers",
		Help:      "Open stream subscriptions.",
	})
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected websocket clients.",
	})
)

// ObserveNavigation records the duration of a page load started at start.
func ObserveNavigation(start time.Time) {
	NavigationSeconds.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
