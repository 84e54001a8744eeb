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

package autoscaler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/htas-io/htas/pkg/autoscaler"
	"github.com/htas-io/htas/pkg/cloudprovider"
)

var flavors = []cloudprovider.VMFlavor{
	{Name: "e2-micro", MilliCPU: 2000, MemoryMiB: 1024, HourlyCost: 0.0060},
	{Name: "e2-standard-2", MilliCPU: 2000, MemoryMiB: 8192, HourlyCost: 0.0686},
}

func TestGreedySelectSatisfiesDemandWithFewestExpensiveFlavors(t *testing.T) {
	selected := autoscaler.GreedySelect(3000, 2048, flavors)
	var totalCPU, totalMem int64
	for _, f := range selected {
		totalCPU += f.MilliCPU
		totalMem += f.MemoryMiB
	}
	assert.GreaterOrEqual(t, totalCPU, int64(3000))
	assert.GreaterOrEqual(t, totalMem, int64(2048))
	assert.Equal(t, []cloudprovider.VMFlavor{flavors[0], flavors[0]}, selected)
}

func TestGreedySelectReturnsNothingForZeroDemand(t *testing.T) {
	assert.Empty(t, autoscaler.GreedySelect(0, 0, flavors))
}

func TestGreedySelectStopsWhenNoFlavorMakesProgress(t *testing.T) {
	selected := autoscaler.GreedySelect(1000, 512, nil)
	assert.Empty(t, selected)
}

func TestValidateFlavorsAcceptsTheDefaultCatalog(t *testing.T) {
	assert.NoError(t, autoscaler.ValidateFlavors(flavors))
}

func TestValidateFlavorsRejectsAnEmptyCatalog(t *testing.T) {
	assert.ErrorIs(t, autoscaler.ValidateFlavors(nil), autoscaler.ErrEmptyFlavorCatalog)
}

func TestValidateFlavorsRejectsAZeroPriceFlavor(t *testing.T) {
	bad := []cloudprovider.VMFlavor{{Name: "free-lunch", MilliCPU: 2000, MemoryMiB: 1024, HourlyCost: 0}}
	assert.Error(t, autoscaler.ValidateFlavors(bad))
}

func TestValidateFlavorsRejectsAZeroCapacityFlavor(t *testing.T) {
	bad := []cloudprovider.VMFlavor{{Name: "no-cpu", MilliCPU: 0, MemoryMiB: 1024, HourlyCost: 0.01}}
	assert.Error(t, autoscaler.ValidateFlavors(bad))
}
