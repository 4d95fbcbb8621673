package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	DialogueTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_turns_total",
			Help: "Total number of dialogue turns by response kind",
		},
		[]string{"kind"},
	)

	DialogueTurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dialogue_turn_duration_seconds",
			Help:    "Duration of one dialogue turn in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	PolicyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_policy_decisions_total",
			Help: "Terminal policy decisions by policy and action",
		},
		[]string{"policy", "action"},
	)

	FollowUps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialogue_follow_ups_total",
			Help: "Follow-up questions asked for missing slots",
		},
	)

	IntentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_intent_outcomes_total",
			Help: "Intent resolution outcomes by state",
		},
		[]string{"state"},
	)

	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_llm_calls_total",
			Help: "LLM calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialogue_active_sessions",
			Help: "Sessions held by the in-memory tracker",
		},
	)
)
