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

// Package fake is an in-memory cloudprovider.Adapter recording every call
// it receives, the way the teacher's pkg/cloudprovider/fake.CloudProvider
// records CreateCalls for assertions in controller tests.
package fake

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/docker/docker/pkg/namesgenerator"

	"github.com/htas-io/htas/pkg/cloudprovider"
)

var _ cloudprovider.Adapter = (*Adapter)(nil)

// Adapter is a cloudprovider.Adapter suitable for unit tests: it never
// calls out to a real orchestrator or cloud backend.
type Adapter struct {
	Flavors []cloudprovider.VMFlavor

	mu sync.Mutex

	BindCalls        []cloudprovider.Binding
	ProvisionCalls   []cloudprovider.VMConfig
	DeprovisionCalls []string
	ResizeCalls      []ResizeCall

	// NodePoolSizes tracks the simulated current size of each node
	// pool, keyed by pool name; each ResizeNodePool call grows it by
	// delta, clamped to the pool's NodePoolMax entry.
	NodePoolSizes map[string]int
	NodePoolMax   map[string]int

	// AllowedProvisionCalls caps how many ProvisionVM calls succeed
	// before returning an error, for exercising partial-failure paths.
	AllowedProvisionCalls int

	BindErr        error
	ProvisionErr   error
	DeprovisionErr error
	ResizeErr      error
}

// ResizeCall records one ResizeNodePool invocation.
type ResizeCall struct {
	WorkloadType string
	Delta        int
}

func NewAdapter() *Adapter {
	return &Adapter{
		AllowedProvisionCalls: math.MaxInt,
		NodePoolSizes:         map[string]int{},
		NodePoolMax:           map[string]int{"batch-pool": 100, "longrunning-pool": 100},
	}
}

func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.BindCalls = nil
	a.ProvisionCalls = nil
	a.DeprovisionCalls = nil
	a.ResizeCalls = nil
	a.NodePoolSizes = map[string]int{}
}

func (a *Adapter) Bind(_ context.Context, b cloudprovider.Binding) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.BindErr != nil {
		return a.BindErr
	}
	a.BindCalls = append(a.BindCalls, b)
	return nil
}

func (a *Adapter) ProvisionVM(_ context.Context, cfg cloudprovider.VMConfig) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ProvisionErr != nil {
		return "", a.ProvisionErr
	}
	if len(a.ProvisionCalls) >= a.AllowedProvisionCalls {
		return "", fmt.Errorf("erroring as number of AllowedProvisionCalls has been exceeded")
	}
	a.ProvisionCalls = append(a.ProvisionCalls, cfg)
	name := cfg.Name
	if name == "" {
		name = namesgenerator.GetRandomName(0)
	}
	return name, nil
}

func (a *Adapter) DeprovisionVM(_ context.Context, instanceName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.DeprovisionErr != nil {
		return a.DeprovisionErr
	}
	a.DeprovisionCalls = append(a.DeprovisionCalls, instanceName)
	return nil
}

func (a *Adapter) ResizeNodePool(_ context.Context, workloadType string, delta int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ResizeErr != nil {
		return a.ResizeErr
	}
	a.ResizeCalls = append(a.ResizeCalls, ResizeCall{WorkloadType: workloadType, Delta: delta})
	poolName, ok := poolNameFor(workloadType)
	if !ok {
		return cloudprovider.ErrNoNodePoolMapping
	}
	if delta <= 0 {
		return nil
	}
	target := a.NodePoolSizes[poolName] + delta
	if max, ok := a.NodePoolMax[poolName]; ok && target > max {
		target = max
	}
	if target > a.NodePoolSizes[poolName] {
		a.NodePoolSizes[poolName] = target
	}
	return nil
}

func poolNameFor(workloadType string) (string, bool) {
	switch workloadType {
	case "batch", "":
		return "batch-pool", true
	case "long-running":
		return "longrunning-pool", true
	default:
		return "", false
	}
}

// DefaultFlavors mirrors original_source/'s VM_FLAVORS table.
func DefaultFlavors() []cloudprovider.VMFlavor {
	return []cloudprovider.VMFlavor{
		{Name: "e2-micro", MilliCPU: 2000, MemoryMiB: 1024, HourlyCost: 0.0060},
		{Name: "e2-standard-2", MilliCPU: 2000, MemoryMiB: 8192, HourlyCost: 0.0686},
	}
}
