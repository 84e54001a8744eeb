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

package packer

import (
	"sort"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
)

// Task is the subset of a pending pod's resource ask the bin-packing
// algorithms need, decoupled from v1.Pod so bfd.go and timebin.go have no
// Kubernetes import.
type Task struct {
	MilliCPU  int64
	MemoryMiB int64
	// RuntimeSeconds is the task's expected runtime, from its runtime
	// annotation (default v1alpha1.DefaultRuntimeSeconds).
	RuntimeSeconds int64
}

// BestFit is Best-Fit Decreasing over a single bin group: the candidate
// node with the least available memory that still fits task is chosen,
// minimizing leftover capacity the way original_source/'s bfd_algorithm
// sorts suitable_nodes by memoryAvailable ascending.
func BestFit(task Task, nodes []v1alpha1.NodeProfile) (string, bool) {
	var suitable []v1alpha1.NodeProfile
	for _, n := range nodes {
		if n.Spec.CPUAvailable >= task.MilliCPU && n.Spec.MemoryAvailable >= task.MemoryMiB {
			suitable = append(suitable, n)
		}
	}
	if len(suitable) == 0 {
		return "", false
	}
	sort.SliceStable(suitable, func(i, j int) bool {
		return suitable[i].Spec.MemoryAvailable < suitable[j].Spec.MemoryAvailable
	})
	return suitable[0].Spec.InstanceName, true
}
