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

package autoscaler

import (
	"fmt"

	"github.com/htas-io/htas/pkg/cloudprovider"
)

// ErrEmptyFlavorCatalog is returned by ValidateFlavors when the
// catalog has no entries at all.
var ErrEmptyFlavorCatalog = fmt.Errorf("flavor catalog is empty")

// ValidateFlavors fails fast on a flavor catalog the Autoscaler could
// never usefully select from: an empty catalog (nothing to provision),
// or any flavor whose HourlyCost, MilliCPU, or MemoryMiB is non-positive
// (score divides by HourlyCost and normalizes against MilliCPU/MemoryMiB,
// so a zero there is a division by zero, not a merely-unattractive
// flavor). Intended to run once at daemon startup, per spec.md's "Flavor
// catalog empty" and "Flavor price 0" fatal-startup requirements.
func ValidateFlavors(flavors []cloudprovider.VMFlavor) error {
	if len(flavors) == 0 {
		return ErrEmptyFlavorCatalog
	}
	for _, f := range flavors {
		if f.HourlyCost <= 0 {
			return fmt.Errorf("flavor %q has non-positive HourlyCost %v", f.Name, f.HourlyCost)
		}
		if f.MilliCPU <= 0 {
			return fmt.Errorf("flavor %q has non-positive MilliCPU %d", f.Name, f.MilliCPU)
		}
		if f.MemoryMiB <= 0 {
			return fmt.Errorf("flavor %q has non-positive MemoryMiB %d", f.Name, f.MemoryMiB)
		}
	}
	return nil
}

// score ranks a flavor against remaining demand: the closer the flavor
// comes to saturating its own capacity on the cheaper side, the higher
// the score, matching original_source/autoscaler.py's calculate_score.
func score(flavor cloudprovider.VMFlavor, remainingMilliCPU, remainingMemoryMiB int64) float64 {
	if flavor.HourlyCost <= 0 || flavor.MilliCPU <= 0 || flavor.MemoryMiB <= 0 {
		return 0
	}
	cpuUsage := remainingMilliCPU
	if cpuUsage > flavor.MilliCPU {
		cpuUsage = flavor.MilliCPU
	}
	memUsage := remainingMemoryMiB
	if memUsage > flavor.MemoryMiB {
		memUsage = flavor.MemoryMiB
	}
	normalizedCPU := float64(cpuUsage) / float64(flavor.MilliCPU)
	normalizedMem := float64(memUsage) / float64(flavor.MemoryMiB)
	return (0.5*normalizedCPU + 0.5*normalizedMem) / flavor.HourlyCost
}

// GreedySelect picks one VM flavor at a time, always the cheapest per
// unit of remaining demand served, until totalMilliCPU and
// totalMemoryMiB are both exhausted; an empty catalog selects nothing.
// It is original_source/'s greedy_autoscaling, generalized off
// the pod list onto plain totals.
func GreedySelect(totalMilliCPU, totalMemoryMiB int64, flavors []cloudprovider.VMFlavor) []cloudprovider.VMFlavor {
	var selected []cloudprovider.VMFlavor
	for totalMilliCPU > 0 || totalMemoryMiB > 0 {
		var best *cloudprovider.VMFlavor
		bestScore := 0.0
		for i := range flavors {
			s := score(flavors[i], totalMilliCPU, totalMemoryMiB)
			if best == nil || s > bestScore {
				bestScore = s
				best = &flavors[i]
			}
		}
		if best == nil {
			break
		}
		selected = append(selected, *best)
		totalMilliCPU -= best.MilliCPU
		totalMemoryMiB -= best.MemoryMiB
	}
	return selected
}
