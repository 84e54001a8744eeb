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

// Package cleaner implements the Instance Cleaner: every cycle, it
// computes each batch node's utilization from the declared requests of its
// Running tasks, and for any node below UtilizationThresholdPercent,
// migrates its batch tasks onto peers before cordoning, deleting, and
// deprovisioning it. Grounded on
// original_source/instance_cleaner.py's check_underutilized_nodes,
// calculate_node_utilization, check_node_resources, and reschedule_node.
package cleaner

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	v1 "k8s.io/api/core/v1"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/cloudprovider"
	"github.com/htas-io/htas/pkg/events"
	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/metrics"
	"github.com/htas-io/htas/pkg/orchestrator"
	"github.com/htas-io/htas/pkg/resources"
	"github.com/htas-io/htas/pkg/utils/pretty"
)

const DefaultReplicaReadyTimeout = 30 * time.Second

// headroom is the remaining allocatable capacity HTAS tracks for a
// candidate node across the migrations within a single cycle, so a second
// migration onto a node already chosen once in this cycle sees the first
// migration's task already subtracted.
type headroom struct {
	milliCPU  int64
	memoryMiB int64
}

// Cleaner runs one Instance Cleaner cycle at a time.
type Cleaner struct {
	Orchestrator orchestrator.Client
	Adapter      cloudprovider.Adapter
	Recorder     events.Recorder
	Migrator     Migrator

	UtilizationThresholdPercent int
	ReplicaReadyTimeout         time.Duration

	// PauseSchedule, if set, is an operator-configured disruption-budget
	// window (e.g. "don't reclaim batch nodes during the nightly backup
	// window"): a cron expression whose next activation, if due within
	// the last PauseWindow, pauses reclaim for this cycle. Supplements a
	// feature original_source/ never had; see SPEC_FULL.md domain stack.
	PauseSchedule cron.Schedule
	// PauseWindow is how long a PauseSchedule activation holds reclaim
	// paused for; defaults to one Instance Cleaner cycle (300s).
	PauseWindow time.Duration
	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

func (c *Cleaner) readyTimeout() time.Duration {
	if c.ReplicaReadyTimeout > 0 {
		return c.ReplicaReadyTimeout
	}
	return DefaultReplicaReadyTimeout
}

func (c *Cleaner) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Run executes one cycle: every node tagged batch-pool is checked for
// underutilization and, if found, reschedule-and-reclaim is attempted.
// A failure reclaiming one node does not stop the cycle from examining the
// rest; all failures are combined and returned.
func (c *Cleaner) Run(ctx context.Context) error {
	defer metrics.Measure(metrics.CleanerCycleDuration)()
	logger := logging.FromContext(ctx)

	if c.paused() {
		logger.Infow("skipping cycle: disruption-budget window active")
		return nil
	}

	nodes, err := c.Orchestrator.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("listing nodes: %w", err)
	}

	var errs error
	for i := range nodes {
		node := &nodes[i]
		if node.Labels[v1alpha1.NodeWorkloadLabel] != v1alpha1.PoolTagBatch {
			continue
		}
		if err := c.reclaimIfUnderutilized(ctx, node, nodes); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("node %s: %w", node.Name, err))
		}
	}
	return errs
}

func (c *Cleaner) pauseWindow() time.Duration {
	if c.PauseWindow > 0 {
		return c.PauseWindow
	}
	return 300 * time.Second
}

// paused reports whether PauseSchedule fired an activation within the
// trailing PauseWindow, i.e. whether "now" falls inside a disruption
// pause window the operator configured.
func (c *Cleaner) paused() bool {
	if c.PauseSchedule == nil {
		return false
	}
	now := c.clock()
	lastPossible := c.PauseSchedule.Next(now.Add(-c.pauseWindow() - time.Second))
	return !lastPossible.After(now) && now.Sub(lastPossible) < c.pauseWindow()
}

// reclaimIfUnderutilized computes node's utilization and, if below
// threshold, attempts the full reschedule-then-reclaim sequence.
func (c *Cleaner) reclaimIfUnderutilized(ctx context.Context, node *v1.Node, allNodes []v1.Node) error {
	logger := logging.FromContext(ctx)

	running, err := c.Orchestrator.RunningTasksOnNode(ctx, node.Name)
	if err != nil {
		return fmt.Errorf("listing running tasks: %w", err)
	}
	utilization := nodeUtilization(ctx, node, running)
	logger.Infow("node utilization", "node", node.Name, "utilization", utilization)
	if utilization >= float64(c.UtilizationThresholdPercent) {
		return nil
	}

	batchTasks := make([]v1.Pod, 0, len(running))
	for _, pod := range running {
		if pod.Labels[v1alpha1.WorkloadTypeLabel] == v1alpha1.WorkloadTypeBatch {
			batchTasks = append(batchTasks, pod)
		}
	}
	if len(batchTasks) == 0 {
		logger.Infow("no batch tasks on underutilized node, skipping reschedule", "node", node.Name)
		return nil
	}

	candidates, headrooms, err := c.candidateHeadrooms(ctx, node.Name, allNodes)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		logger.Infow("no candidate nodes available for rescheduling", "node", node.Name)
		return nil
	}
	logger.Infow("reclaim candidates", "node", node.Name, "candidates", pretty.Slice(candidates, 5))

	for i := range batchTasks {
		pod := &batchTasks[i]
		milliCPU, memoryMiB := resources.PodRequests(ctx, pod)

		target := ""
		for _, cand := range candidates {
			h := headrooms[cand]
			if h.milliCPU >= milliCPU && h.memoryMiB >= memoryMiB {
				target = cand
				break
			}
		}
		if target == "" {
			logger.Warnw("no suitable target found for task, aborting reclaim", "task", pod.Name, "node", node.Name)
			return nil
		}

		if err := c.migrate(ctx, pod, node, target); err != nil {
			logger.Warnw("migration failed, aborting reclaim", "task", pod.Name, "node", node.Name, "error", err)
			return nil
		}
		h := headrooms[target]
		h.milliCPU -= milliCPU
		h.memoryMiB -= memoryMiB
		headrooms[target] = h
	}

	return c.reclaim(ctx, node)
}

// candidateHeadrooms lists every other batch-pool node and its current
// allocatable headroom (allocatable less the requests of its Running
// tasks), the starting point for the incremental accounting
// reclaimIfUnderutilized updates as each migration commits.
func (c *Cleaner) candidateHeadrooms(ctx context.Context, exclude string, allNodes []v1.Node) ([]string, map[string]headroom, error) {
	var candidates []string
	headrooms := map[string]headroom{}

	for i := range allNodes {
		n := &allNodes[i]
		if n.Name == exclude {
			continue
		}
		if n.Labels[v1alpha1.NodeWorkloadLabel] != v1alpha1.PoolTagBatch {
			continue
		}
		running, err := c.Orchestrator.RunningTasksOnNode(ctx, n.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("listing running tasks on candidate %s: %w", n.Name, err)
		}
		var usedCPU, usedMem int64
		for i := range running {
			cpu, mem := resources.PodRequests(ctx, &running[i])
			usedCPU += cpu
			usedMem += mem
		}
		allocCPU := n.Status.Allocatable.Cpu().MilliValue()
		allocMem := n.Status.Allocatable.Memory().Value() / (1024 * 1024)
		candidates = append(candidates, n.Name)
		headrooms[n.Name] = headroom{
			milliCPU:  allocCPU - usedCPU,
			memoryMiB: allocMem - usedMem,
		}
	}
	return candidates, headrooms, nil
}

// migrate runs the seven-step migration protocol from spec.md section
// 4.E. Any failure leaves the original task unaffected (checkpoint used
// --leave-running) and is surfaced as MigrationFailed.
func (c *Cleaner) migrate(ctx context.Context, pod *v1.Pod, from *v1.Node, targetNode string) error {
	target := &v1.Node{}
	target.Name = targetNode
	c.Recorder.Publish(events.MigrationStarted(pod, from, target))

	artifactDir, err := c.Migrator.Checkpoint(ctx, pod)
	if err != nil {
		return c.migrationFailed(pod, from, fmt.Errorf("checkpoint: %w", err))
	}

	localPath, err := c.Migrator.Export(ctx, pod, artifactDir)
	if err != nil {
		return c.migrationFailed(pod, from, fmt.Errorf("export: %w", err))
	}

	replica, err := c.Orchestrator.CreateReplicaTask(ctx, pod, "-migrated", targetNode)
	if err != nil {
		return c.migrationFailed(pod, from, fmt.Errorf("creating replica: %w", err))
	}

	ready, err := c.Orchestrator.WaitTaskRunning(ctx, replica.Name, c.readyTimeout())
	if err != nil {
		return c.migrationFailed(pod, from, fmt.Errorf("waiting for replica: %w", err))
	}

	if err := c.Migrator.Import(ctx, ready, localPath); err != nil {
		return c.migrationFailed(pod, from, fmt.Errorf("import: %w", err))
	}

	if err := c.Migrator.Restore(ctx, ready); err != nil {
		return c.migrationFailed(pod, from, fmt.Errorf("restore: %w", err))
	}

	if err := c.Orchestrator.EvictTask(ctx, pod.Name); err != nil {
		return c.migrationFailed(pod, from, fmt.Errorf("deleting original task: %w", err))
	}

	metrics.MigrationsCounter.WithLabelValues("success").Inc()
	return nil
}

func (c *Cleaner) migrationFailed(pod *v1.Pod, from *v1.Node, err error) error {
	metrics.MigrationsCounter.WithLabelValues("failed").Inc()
	c.Recorder.Publish(events.MigrationFailed(pod, from, err))
	return err
}

// reclaim cordons, deletes, and deprovisions node after all of its batch
// tasks have migrated away successfully.
func (c *Cleaner) reclaim(ctx context.Context, node *v1.Node) error {
	if err := c.Orchestrator.CordonNode(ctx, node.Name); err != nil {
		return fmt.Errorf("cordoning: %w", err)
	}
	if err := c.Orchestrator.DeleteNode(ctx, node.Name); err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	if err := c.Adapter.DeprovisionVM(ctx, node.Name); err != nil {
		return fmt.Errorf("deprovisioning VM: %w", err)
	}
	metrics.NodesReclaimedCounter.Inc()
	c.Recorder.Publish(events.NodeReclaimed(node))
	return nil
}

// nodeUtilization is the average of CPU and memory utilization, each
// computed from the node's reported capacity and the summed requests of
// its Running tasks, not observed metrics. Grounded on
// original_source/instance_cleaner.py's calculate_node_utilization.
func nodeUtilization(ctx context.Context, node *v1.Node, running []v1.Pod) float64 {
	cpuCapacity := node.Status.Capacity.Cpu().MilliValue()
	memCapacity := node.Status.Capacity.Memory().Value() / (1024 * 1024)

	var usedCPU, usedMem int64
	for i := range running {
		cpu, mem := resources.PodRequests(ctx, &running[i])
		usedCPU += cpu
		usedMem += mem
	}

	var cpuUtil, memUtil float64
	if cpuCapacity > 0 {
		cpuUtil = float64(usedCPU) / float64(cpuCapacity) * 100
	}
	if memCapacity > 0 {
		memUtil = float64(usedMem) / float64(memCapacity) * 100
	}
	return (cpuUtil + memUtil) / 2
}
