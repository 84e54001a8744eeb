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

// Package packer implements the Task Packer: every cycle, it lists
// pending tasks, partitions the current NodeProfiles by pool-tag, and
// runs BestFit (long-running) or TimeBinBestFit (batch) to place each
// task, binding it to the chosen node. A task nothing fits joins an
// AutoScaleRequest for its workload type, grounded on
// original_source/task_packer.py's schedule_pods loop.
package packer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/cloudprovider"
	"github.com/htas-io/htas/pkg/events"
	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/metrics"
	"github.com/htas-io/htas/pkg/orchestrator"
	"github.com/htas-io/htas/pkg/resources"
)

// Packer runs one Task Packer cycle at a time; Run is called
// repeatedly by cmd/packer's ticker loop.
type Packer struct {
	Orchestrator orchestrator.Client
	Adapter      cloudprovider.Adapter
	Recorder     events.Recorder

	// ProfilerURL is the Resource Profiler's GET /nodes endpoint.
	// Empty disables the HTTP path entirely, going straight to
	// Orchestrator.NodeProfiles.
	ProfilerURL         string
	HTTPClient          *http.Client
	ScalingCycleSeconds int64
}

// nodeProfileResponse mirrors the Resource Profiler's NodeProfileList
// wire shape served by GET /nodes.
type nodeProfileResponse struct {
	Items []v1alpha1.NodeProfile `json:"items"`
}

// knownWorkloadTypes is the set of workload-type label values the Packer
// schedules differently; anything else is normalized to batch rather
// than silently growing a new AutoScaleRequest bucket for a typo.
var knownWorkloadTypes = sets.New(v1alpha1.WorkloadTypeBatch, v1alpha1.WorkloadTypeLongRunning)

// Run executes one Task Packer cycle.
func (p *Packer) Run(ctx context.Context) error {
	defer metrics.Measure(metrics.PackerCycleDuration)()
	logger := logging.FromContext(ctx)

	tasks, err := p.Orchestrator.PendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("listing pending tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	profiles, err := p.nodeProfiles(ctx)
	if err != nil {
		return fmt.Errorf("listing node profiles: %w", err)
	}

	var longRunning, batch []v1alpha1.NodeProfile
	for _, n := range profiles {
		switch n.Spec.PoolTag {
		case v1alpha1.PoolTagLongRunning:
			longRunning = append(longRunning, n)
		default:
			batch = append(batch, n)
		}
	}

	unplaced := map[string][]string{}
	for i := range tasks {
		pod := &tasks[i]
		workloadType := pod.Labels[v1alpha1.WorkloadTypeLabel]
		if workloadType == "" {
			workloadType = v1alpha1.WorkloadTypeBatch
		} else if !knownWorkloadTypes.Has(workloadType) {
			logger.Warnf("task %s has unrecognized workload-type %q, treating as batch", pod.Name, workloadType)
			workloadType = v1alpha1.WorkloadTypeBatch
		}
		milliCPU, memoryMiB := resources.PodRequests(ctx, pod)
		task := Task{
			MilliCPU:       milliCPU,
			MemoryMiB:      memoryMiB,
			RuntimeSeconds: podRuntimeSeconds(pod),
		}

		var nodeName string
		var ok bool
		if workloadType == v1alpha1.WorkloadTypeLongRunning {
			nodeName, ok = BestFit(task, longRunning)
		} else {
			nodeName, ok = TimeBinBestFit(task, batch, p.ScalingCycleSeconds)
		}

		if !ok {
			logger.Infof("no node fit task %s (%s)", pod.Name, workloadType)
			p.Recorder.Publish(events.TaskFailedToSchedule(pod, fmt.Errorf("no node with sufficient capacity")))
			unplaced[workloadType] = append(unplaced[workloadType], pod.Name)
			continue
		}

		if err := p.Adapter.Bind(ctx, cloudprovider.Binding{PodName: pod.Name, Namespace: pod.Namespace, NodeName: nodeName}); err != nil {
			logger.Errorf("binding task %s to node %s: %s", pod.Name, nodeName, err)
			unplaced[workloadType] = append(unplaced[workloadType], pod.Name)
			continue
		}
		metrics.TasksBoundCounter.WithLabelValues(workloadType).Inc()
		p.Recorder.Publish(events.TaskBound(pod, &v1.Node{ObjectMeta: objectMeta(nodeName)}))
	}

	for workloadType, podNames := range unplaced {
		if err := p.requestAutoScale(ctx, workloadType, podNames); err != nil {
			logger.Errorf("creating AutoScaleRequest for %s: %s", workloadType, err)
		}
	}
	return nil
}

// nodeProfiles reads NodeProfiles from the Resource Profiler's HTTP
// endpoint, falling back to the orchestrator's custom objects when the
// service doesn't answer within a short timeout, matching
// original_source/'s get_node_profiles two-tier fallback.
func (p *Packer) nodeProfiles(ctx context.Context) ([]v1alpha1.NodeProfile, error) {
	if p.ProfilerURL != "" {
		client := p.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfilerURL, nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				defer resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					var parsed nodeProfileResponse
					if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
						metrics.ProfileSourceCounter.WithLabelValues("http").Inc()
						return parsed.Items, nil
					}
				}
			}
		}
	}
	metrics.ProfileSourceCounter.WithLabelValues("orchestrator").Inc()
	return p.Orchestrator.NodeProfiles(ctx)
}

// requestAutoScale creates one AutoScaleRequest per workload type per
// cycle, naming it deterministically from the sorted set of unplaced
// pod names so repeated cycles with the same pending backlog collapse
// into the same record rather than piling up duplicates (AlreadyExists
// on CreateAutoScaleRequest is success).
func (p *Packer) requestAutoScale(ctx context.Context, workloadType string, podNames []string) error {
	sorted := append([]string(nil), podNames...)
	sort.Strings(sorted)

	hash, err := hashstructure.Hash(struct {
		WorkloadType string
		PodNames     []string
	}{workloadType, sorted}, hashstructure.FormatV2, nil)
	if err != nil {
		return fmt.Errorf("hashing autoscale request key: %w", err)
	}

	req := &v1alpha1.AutoScaleRequest{
		ObjectMeta: objectMeta(fmt.Sprintf("asr-%s-%x", workloadType, hash)),
		Spec: v1alpha1.AutoScaleRequestSpec{
			WorkloadType: workloadType,
			PodNames:     sorted,
		},
	}
	if err := p.Orchestrator.CreateAutoScaleRequest(ctx, req); err != nil {
		return err
	}
	metrics.AutoScaleRequestsCreatedCounter.WithLabelValues(workloadType).Inc()
	p.Recorder.Publish(events.AutoScaleRequestCreated(req))
	return nil
}

func podRuntimeSeconds(pod *v1.Pod) int64 {
	raw, ok := pod.Annotations[v1alpha1.RuntimeAnnotation]
	if !ok {
		return v1alpha1.DefaultRuntimeSeconds
	}
	var seconds int64
	if _, err := fmt.Sscanf(raw, "%d", &seconds); err != nil || seconds < 0 {
		return v1alpha1.DefaultRuntimeSeconds
	}
	return seconds
}
