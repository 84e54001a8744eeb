/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const Namespace = "htas"

// Label names shared across the metric vectors below.
const (
	WorkloadTypeLabel = "workload_type"
	ReasonLabel       = "reason"
	SourceLabel       = "source"
	OutcomeLabel      = "outcome"
)

var (
	TasksBoundCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "packer",
			Name:      "tasks_bound_total",
			Help:      "Number of tasks successfully bound to a node, by workload type.",
		},
		[]string{WorkloadTypeLabel},
	)
	AutoScaleRequestsCreatedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "packer",
			Name:      "autoscale_requests_created_total",
			Help:      "Number of AutoScaleRequests created because no placement existed.",
		},
		[]string{WorkloadTypeLabel},
	)
	ProfileSourceCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "packer",
			Name:      "profile_source_total",
			Help:      "Number of Packer cycles that read NodeProfiles from each source.",
		},
		[]string{SourceLabel},
	)
	PackerCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "packer",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one Task Packer cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	NodesProvisionedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "autoscaler",
			Name:      "nodes_provisioned_total",
			Help:      "Number of nodes requested via ResizeNodePool, by workload type.",
		},
		[]string{WorkloadTypeLabel},
	)
	AutoScaleRequestsDeletedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "autoscaler",
			Name:      "autoscale_requests_deleted_total",
			Help:      "Number of AutoScaleRequests deleted after consumption, by reason.",
		},
		[]string{ReasonLabel},
	)
	AutoscalerCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "autoscaler",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one Autoscaler cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ProfilerReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "profiler",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of one Resource Profiler reconcile pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	ProfilerReconcileFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "profiler",
			Name:      "reconcile_failures_total",
			Help:      "Number of reconcile passes that failed and served the prior snapshot.",
		},
	)

	NodesReclaimedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cleaner",
			Name:      "nodes_reclaimed_total",
			Help:      "Number of underutilized nodes fully reclaimed: migrated, cordoned, deleted, deprovisioned.",
		},
	)
	MigrationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cleaner",
			Name:      "migrations_total",
			Help:      "Number of task migrations attempted, by outcome.",
		},
		[]string{OutcomeLabel},
	)
	CleanerCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "cleaner",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one Instance Cleaner cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// MustRegister registers every HTAS metric against controller-runtime's
// default registry, the way the teacher's pkg/metrics.init does for its
// own collectors, so a single /metrics endpoint serves all of them.
func MustRegister() {
	crmetrics.Registry.MustRegister(
		TasksBoundCounter,
		AutoScaleRequestsCreatedCounter,
		ProfileSourceCounter,
		PackerCycleDuration,
		NodesProvisionedCounter,
		AutoScaleRequestsDeletedCounter,
		AutoscalerCycleDuration,
		ProfilerReconcileDuration,
		ProfilerReconcileFailuresCounter,
		NodesReclaimedCounter,
		MigrationsCounter,
		CleanerCycleDuration,
	)
}

// Measure starts a timer and returns a func to be deferred at the call
// site, observing elapsed seconds against histogram.
func Measure(histogram prometheus.Histogram) func() {
	start := time.Now()
	return func() {
		histogram.Observe(time.Since(start).Seconds())
	}
}
