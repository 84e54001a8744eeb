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

// Package autoscaler implements the Autoscaler: every cycle, it consumes
// every pending AutoScaleRequest, re-reads the Pending status of the
// pods it names (pods may have been placed by the Packer since the
// request was created), sizes the VM fleet that would absorb the
// survivors, and resizes the corresponding GKE node pool. Grounded on
// original_source/autoscaler.py's autoscale_loop.
package autoscaler

import (
	"context"
	"fmt"

	v1 "k8s.io/api/core/v1"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/cloudprovider"
	"github.com/htas-io/htas/pkg/events"
	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/metrics"
	"github.com/htas-io/htas/pkg/orchestrator"
	"github.com/htas-io/htas/pkg/resources"
)

// Autoscaler runs one Autoscaler cycle at a time.
type Autoscaler struct {
	Orchestrator        orchestrator.Client
	Adapter             cloudprovider.Adapter
	Recorder            events.Recorder
	Flavors             []cloudprovider.VMFlavor
	ScalingCycleSeconds int64
}

// Run executes one Autoscaler cycle.
func (a *Autoscaler) Run(ctx context.Context) error {
	defer metrics.Measure(metrics.AutoscalerCycleDuration)()
	logger := logging.FromContext(ctx)

	requests, err := a.Orchestrator.AutoScaleRequests(ctx)
	if err != nil {
		return fmt.Errorf("listing autoscale requests: %w", err)
	}

	for i := range requests {
		req := &requests[i]
		if err := a.consume(ctx, req); err != nil {
			logger.Errorf("consuming autoscale request %s: %s", req.Name, err)
			continue
		}
	}
	return nil
}

func (a *Autoscaler) consume(ctx context.Context, req *v1alpha1.AutoScaleRequest) error {
	logger := logging.FromContext(ctx)

	var pending []v1.Pod
	for _, name := range req.Spec.PodNames {
		pod, err := a.Orchestrator.GetTask(ctx, name)
		if err != nil {
			logger.Warnf("reading task %s for autoscale request %s: %s", name, req.Name, err)
			continue
		}
		if pod == nil || pod.Status.Phase != v1.PodPending {
			continue
		}
		pending = append(pending, *pod)
	}

	reason := "consumed"
	if len(pending) == 0 {
		// Every named task was placed (or deleted) since the request
		// was created; the request is stale, not actionable.
		reason = "stale"
	} else {
		var totalMilliCPU, totalMemoryMiB int64
		for i := range pending {
			cpu, mem := resources.PodRequests(ctx, &pending[i])
			totalMilliCPU += cpu
			totalMemoryMiB += mem
		}

		var flavors []cloudprovider.VMFlavor
		if req.Spec.WorkloadType == v1alpha1.WorkloadTypeLongRunning {
			flavors = GreedySelect(totalMilliCPU, totalMemoryMiB, a.Flavors)
		} else {
			flavors = a.batchSelect(ctx, totalMilliCPU, totalMemoryMiB)
		}

		if len(flavors) > 0 {
			poolName, _ := v1alpha1.NodePoolName(req.Spec.WorkloadType)
			if err := a.Adapter.ResizeNodePool(ctx, req.Spec.WorkloadType, len(flavors)); err != nil {
				return fmt.Errorf("resizing node pool for %s: %w", req.Spec.WorkloadType, err)
			}
			metrics.NodesProvisionedCounter.WithLabelValues(req.Spec.WorkloadType).Add(float64(len(flavors)))
			a.Recorder.Publish(events.NodePoolResized(req, poolName, len(flavors)))
		}
	}

	if err := a.Orchestrator.DeleteAutoScaleRequest(ctx, req.Name); err != nil {
		return fmt.Errorf("deleting autoscale request: %w", err)
	}
	metrics.AutoScaleRequestsDeletedCounter.WithLabelValues(reason).Inc()
	return nil
}

// batchSelect subtracts the capacity of zero-bin batch nodes (nodes
// newer than one scaling cycle, whose capacity the Packer hasn't had a
// chance to fill yet) from pending demand before sizing new VMs,
// matching original_source/'s batch_node_autoscaling.
func (a *Autoscaler) batchSelect(ctx context.Context, totalMilliCPU, totalMemoryMiB int64) []cloudprovider.VMFlavor {
	profiles, err := a.Orchestrator.NodeProfiles(ctx)
	if err != nil {
		logging.FromContext(ctx).Warnf("listing node profiles for zero-bin subtraction: %s", err)
		profiles = nil
	}

	for _, n := range profiles {
		if n.Spec.PoolTag != v1alpha1.PoolTagBatch {
			continue
		}
		if n.Spec.Runtime < a.ScalingCycleSeconds {
			totalMilliCPU -= n.Spec.CPUCapacity
			totalMemoryMiB -= n.Spec.MemoryCapacity
		}
	}

	if totalMilliCPU <= 0 && totalMemoryMiB <= 0 {
		return nil
	}
	return GreedySelect(totalMilliCPU, totalMemoryMiB, a.Flavors)
}
