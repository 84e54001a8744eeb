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

package v1alpha1

// Task (pod) scheduling gate, labels, and annotations consumed by HTAS,
// per spec.md section 6.
const (
	// SchedulerName gates task eligibility: only tasks whose
	// spec.schedulerName equals this value are considered.
	SchedulerName = "htas-scheduler"

	// WorkloadTypeLabel selects a task's workload class.
	WorkloadTypeLabel = "workload-type"

	// RuntimeAnnotation carries a task's expected runtime, in seconds.
	RuntimeAnnotation = "runtime"

	// DefaultRuntimeSeconds is used when RuntimeAnnotation is absent,
	// unparseable, or negative.
	DefaultRuntimeSeconds = 300

	// CPURequestAnnotation and MemoryRequestAnnotation carry a task's
	// declared resource request as a raw quantity string, the fallback
	// original_source/'s schedule_pods reads via resources.get("cpu",
	// "0") / resources.get("memory", "0") for tasks submitted without
	// typed container resource requests.
	CPURequestAnnotation    = "cpu-request"
	MemoryRequestAnnotation = "memory-request"
)

// Node labels consumed by HTAS, per spec.md section 6.
const (
	// NodeWorkloadLabel assigns a node's pool-tag.
	NodeWorkloadLabel = "workload"

	// InstanceTypeLabel is the well-known node label carrying the cloud
	// instance type, mirrored onto NodeProfile.Spec.InstanceType.
	InstanceTypeLabel = "beta.kubernetes.io/instance-type"
)

// Pool tags. A node's pool-tag is batch or longrunning; it is distinct
// from a task's workload-type (batch or long-running) only in spelling,
// a mismatch inherited unchanged from original_source/.
const (
	PoolTagBatch       = "batch"
	PoolTagLongRunning = "longrunning"
)

// NodePoolName maps a task's workload-type to the orchestrator-visible
// node-pool name the Autoscaler resizes, per spec.md section 4.D.
func NodePoolName(workloadType string) (string, bool) {
	switch workloadType {
	case WorkloadTypeBatch, "":
		return "batch-pool", true
	case WorkloadTypeLongRunning:
		return "longrunning-pool", true
	default:
		return "", false
	}
}

// PoolTagForWorkloadType maps a task's workload-type to the pool-tag of
// the node pool it schedules onto.
func PoolTagForWorkloadType(workloadType string) string {
	if workloadType == WorkloadTypeLongRunning {
		return PoolTagLongRunning
	}
	return PoolTagBatch
}
