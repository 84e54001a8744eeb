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

// Package profiler implements the Resource Profiler: every cycle, it
// recomputes a NodeProfile for every orchestrator Node carrying the HTAS
// workload label, from the node's allocatable capacity less the sum of
// its Running tasks' requests, and serves the resulting snapshot over
// GET /nodes. Grounded on original_source/resource_profiler.py's
// update_node_profiles and its Flask /nodes route.
package profiler

import (
	"context"
	"fmt"
	"time"

	v1 "k8s.io/api/core/v1"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/metrics"
	"github.com/htas-io/htas/pkg/orchestrator"
	"github.com/htas-io/htas/pkg/resources"
)

// Profiler runs one Resource Profiler reconcile pass at a time, and
// keeps the last successful snapshot available to Handler for the
// /nodes endpoint even when a pass fails.
type Profiler struct {
	Orchestrator orchestrator.Client
	Snapshot     *Snapshot
}

// Reconcile recomputes every Node's NodeProfile and commits it to the
// orchestrator, then refreshes Snapshot on success. On failure the
// previous Snapshot is left untouched so GET /nodes keeps serving the
// last good data rather than an empty list.
func (p *Profiler) Reconcile(ctx context.Context) error {
	defer metrics.Measure(metrics.ProfilerReconcileDuration)()
	logger := logging.FromContext(ctx)

	nodes, err := p.Orchestrator.Nodes(ctx)
	if err != nil {
		metrics.ProfilerReconcileFailuresCounter.Inc()
		return fmt.Errorf("listing nodes: %w", err)
	}

	profiles := make([]v1alpha1.NodeProfile, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for i := range nodes {
		node := &nodes[i]
		profile, err := p.nodeProfile(ctx, node)
		if err != nil {
			logger.Warnf("profiling node %s: %s", node.Name, err)
			continue
		}
		if err := p.Orchestrator.UpsertNodeProfile(ctx, profile); err != nil {
			logger.Warnf("upserting node profile %s: %s", node.Name, err)
			continue
		}
		profiles = append(profiles, *profile)
		seen[node.Name] = true
	}

	existing, err := p.Orchestrator.NodeProfiles(ctx)
	if err == nil {
		for _, e := range existing {
			if !seen[e.Name] {
				if err := p.Orchestrator.DeleteNodeProfile(ctx, e.Name); err != nil {
					logger.Warnf("deleting stale node profile %s: %s", e.Name, err)
				}
			}
		}
	}

	p.Snapshot.Set(profiles)
	return nil
}

// nodeProfile computes node's NodeProfile from its allocatable capacity
// less the summed requests of its Running tasks. runtime-age is
// node.CreationTimestamp's age in seconds: original_source/'s profiler
// always wrote 0 here and left the Task Packer to infer staleness;
// computing it once, at the source, removes that inconsistency.
func (p *Profiler) nodeProfile(ctx context.Context, node *v1.Node) (*v1alpha1.NodeProfile, error) {
	poolTag, ok := node.Labels[v1alpha1.NodeWorkloadLabel]
	if !ok {
		return nil, fmt.Errorf("node has no %s label", v1alpha1.NodeWorkloadLabel)
	}

	cpuCapacity := node.Status.Allocatable.Cpu().MilliValue()
	memoryCapacity := node.Status.Allocatable.Memory().Value() / (1024 * 1024)

	running, err := p.Orchestrator.RunningTasksOnNode(ctx, node.Name)
	if err != nil {
		return nil, fmt.Errorf("listing running tasks on %s: %w", node.Name, err)
	}
	var usedCPU, usedMemory int64
	for i := range running {
		cpu, mem := resources.PodRequests(ctx, &running[i])
		usedCPU += cpu
		usedMemory += mem
	}

	instanceType := node.Labels[v1alpha1.InstanceTypeLabel]
	if instanceType == "" {
		instanceType = "unknown"
	}

	var runtimeAge int64
	if !node.CreationTimestamp.IsZero() {
		runtimeAge = time.Now().Unix() - node.CreationTimestamp.Unix()
		if runtimeAge < 0 {
			runtimeAge = 0
		}
	}

	return &v1alpha1.NodeProfile{
		ObjectMeta: objectMeta(node.Name),
		Spec: v1alpha1.NodeProfileSpec{
			InstanceName:    node.Name,
			InstanceType:    instanceType,
			CPUCapacity:     cpuCapacity,
			MemoryCapacity:  memoryCapacity,
			CPUAvailable:    max64(cpuCapacity-usedCPU, 0),
			MemoryAvailable: max64(memoryCapacity-usedMemory, 0),
			Runtime:         runtimeAge,
			PoolTag:         poolTag,
		},
	}, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
