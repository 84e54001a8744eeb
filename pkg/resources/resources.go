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

// Package resources converts between orchestrator quantities
// (k8s.io/apimachinery/pkg/api/resource.Quantity, as used across the
// pack's provisioning.v1alpha5.Resources) and the plain int64 millicore /
// MiB units NodeProfile and the bin-packing algorithms compute with.
// Malformed quantity strings are tolerated rather than rejected, matching
// original_source/'s parse_cpu/parse_memory, which return zero rather
// than aborting a packing cycle over one bad pod spec.
package resources

import (
	"context"
	"sync"

	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"go.uber.org/zap"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/logging"
)

// MilliCPU parses a CPU quantity string (e.g. "500m", "2") into
// millicores, returning 0 and logging once per taskName on a malformed
// string.
func MilliCPU(ctx context.Context, taskName, s string) int64 {
	if s == "" {
		return 0
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		WarnOnceMalformed(logging.FromContext(ctx), taskName, "cpu", s)
		return 0
	}
	return q.MilliValue()
}

// MemoryMiB parses a memory quantity string (e.g. "512Mi", "2Gi", bare
// bytes) into mebibytes, returning 0 and logging once per taskName on a
// malformed string.
func MemoryMiB(ctx context.Context, taskName, s string) int64 {
	if s == "" {
		return 0
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		WarnOnceMalformed(logging.FromContext(ctx), taskName, "memory", s)
		return 0
	}
	return q.Value() / (1024 * 1024)
}

// PodRequests sums the CPU (millicores) and memory (MiB) requests across
// a pod's containers. Typed container resource requests are admission-
// validated and can never be malformed; a task submitted without them
// falls back to the raw CPURequestAnnotation/MemoryRequestAnnotation
// strings, original_source/'s only source for a task's declared request,
// where a malformed value is treated as zero and logged once.
func PodRequests(ctx context.Context, pod *v1.Pod) (milliCPU, memoryMiB int64) {
	for _, c := range pod.Spec.Containers {
		if cpu, ok := c.Resources.Requests[v1.ResourceCPU]; ok {
			milliCPU += cpu.MilliValue()
		}
		if mem, ok := c.Resources.Requests[v1.ResourceMemory]; ok {
			memoryMiB += mem.Value() / (1024 * 1024)
		}
	}
	if milliCPU == 0 {
		if raw, ok := pod.Annotations[v1alpha1.CPURequestAnnotation]; ok {
			milliCPU = MilliCPU(ctx, pod.Name, raw)
		}
	}
	if memoryMiB == 0 {
		if raw, ok := pod.Annotations[v1alpha1.MemoryRequestAnnotation]; ok {
			memoryMiB = MemoryMiB(ctx, pod.Name, raw)
		}
	}
	return milliCPU, memoryMiB
}

// FormatMilliCPU renders millicores back into the "Nm" quantity string
// the cloud adapter and logs expect.
func FormatMilliCPU(m int64) string {
	return resource.NewMilliQuantity(m, resource.DecimalSI).String()
}

// FormatMemoryMiB renders mebibytes back into a "NMi" quantity string.
func FormatMemoryMiB(m int64) string {
	return resource.NewQuantity(m*1024*1024, resource.BinarySI).String()
}

// malformedLogger dedups the "couldn't parse resource string" warning to
// one emission per task name per field per process lifetime, since a
// persistently misconfigured task would otherwise re-log every Packer
// cycle (every 20s).
type malformedLogger struct {
	seen sync.Map
}

var warnings malformedLogger

// WarnOnceMalformed logs a warning the first time a given task's field
// is found malformed, then stays silent for that task/field for the
// remainder of the process's lifetime, even if later encountered with a
// different (still malformed) raw value.
func WarnOnceMalformed(logger *zap.SugaredLogger, taskName, field, raw string) {
	key := field + ":" + taskName
	if _, loaded := warnings.seen.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	logger.Warnf("malformed %s quantity %q on task %s, treating as zero", field, raw, taskName)
}
