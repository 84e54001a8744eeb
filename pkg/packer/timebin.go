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

// TimeBinBestFit is Time-Bin BFD for batch workloads: nodes are grouped
// into bins by floor(runtime-age / scalingCycleSeconds), the task's own
// runtime is mapped to the same bin index, and BestFit is tried against
// the task's bin first, then progressively later bins (nodes that will
// outlive the task, wasting less future capacity), then progressively
// earlier bins (nodes closer to being reclaimed, accepted only once
// nothing better remains), matching original_source/'s time_bin_bfd
// search order.
func TimeBinBestFit(task Task, batchNodes []v1alpha1.NodeProfile, scalingCycleSeconds int64) (string, bool) {
	if scalingCycleSeconds <= 0 {
		scalingCycleSeconds = 1
	}
	taskBin := task.RuntimeSeconds / scalingCycleSeconds

	bins := map[int64][]v1alpha1.NodeProfile{}
	for _, n := range batchNodes {
		runtime := n.Spec.Runtime
		nodeBin := runtime / scalingCycleSeconds
		bins[nodeBin] = append(bins[nodeBin], n)
	}

	var higher, lower []int64
	for b := range bins {
		switch {
		case b > taskBin:
			higher = append(higher, b)
		case b < taskBin:
			lower = append(lower, b)
		}
	}
	sort.Slice(higher, func(i, j int) bool { return higher[i] < higher[j] })
	sort.Slice(lower, func(i, j int) bool { return lower[i] > lower[j] })

	order := make([]int64, 0, 1+len(higher)+len(lower))
	order = append(order, taskBin)
	order = append(order, higher...)
	order = append(order, lower...)

	for _, b := range order {
		group, ok := bins[b]
		if !ok {
			continue
		}
		if name, ok := BestFit(task, group); ok {
			return name, true
		}
	}
	return "", false
}
