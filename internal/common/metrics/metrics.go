package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job-level metrics shared by every worker.
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

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Assignment outcome metrics, labelled by batch kind.
var (
	AssignmentApplicants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignment_applicants_total",
			Help: "Applicants placed, by the phase that placed them",
		},
		[]string{"kind", "phase"},
	)

	AssignmentUnassigned = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assignment_unassigned",
			Help: "Applicants left without a slot by the latest run",
		},
		[]string{"kind"},
	)

	AssignmentAverageRank = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assignment_average_rank",
			Help: "Average preference rank of ranked assignments in the latest run",
		},
		[]string{"kind"},
	)

	AssignmentRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assignment_run_duration_seconds",
			Help:    "Time spent inside the assignment engine",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"kind"},
	)
)

// RecordPhases adds per-phase placement counts for one run.
func RecordPhases(kind string, stable, cascade, forced int) {
	AssignmentApplicants.WithLabelValues(kind, "stable").Add(float64(stable))
	AssignmentApplicants.WithLabelValues(kind, "cascade").Add(float64(cascade))
	AssignmentApplicants.WithLabelValues(kind, "forced").Add(float64(forced))
}
