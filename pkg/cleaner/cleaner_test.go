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

package cleaner_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/cleaner"
	fakemigrator "github.com/htas-io/htas/pkg/cleaner/fake"
	fakeadapter "github.com/htas-io/htas/pkg/cloudprovider/fake"
	fakeorchestrator "github.com/htas-io/htas/pkg/orchestrator/fake"
	"github.com/htas-io/htas/pkg/test"
)

func batchNode(name string, milliCPU, memoryMiB int64) *v1.Node {
	return &v1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: map[string]string{
			v1alpha1.NodeWorkloadLabel: v1alpha1.PoolTagBatch,
		}},
		Status: v1.NodeStatus{
			Capacity:    resourceList(milliCPU, memoryMiB),
			Allocatable: resourceList(milliCPU, memoryMiB),
		},
	}
}

func resourceList(milliCPU, memoryMiB int64) v1.ResourceList {
	return v1.ResourceList{
		v1.ResourceCPU:    *resource.NewMilliQuantity(milliCPU, resource.DecimalSI),
		v1.ResourceMemory: *resource.NewQuantity(memoryMiB*1024*1024, resource.BinarySI),
	}
}

func batchTask(name, nodeName string, milliCPU, memoryMiB int64) *v1.Pod {
	return &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: map[string]string{
			v1alpha1.WorkloadTypeLabel: v1alpha1.WorkloadTypeBatch,
		}},
		Spec: v1.PodSpec{NodeName: nodeName, Containers: []v1.Container{{
			Name:      "main",
			Resources: v1.ResourceRequirements{Requests: resourceList(milliCPU, memoryMiB)},
		}}},
		Status: v1.PodStatus{Phase: v1.PodRunning},
	}
}

func newCleaner(orchestratorClient *fakeorchestrator.Client, adapter *fakeadapter.Adapter, migrator *fakemigrator.Migrator) *cleaner.Cleaner {
	return &cleaner.Cleaner{
		Orchestrator:                orchestratorClient,
		Adapter:                     adapter,
		Recorder:                    test.NewEventRecorder(),
		Migrator:                    migrator,
		UtilizationThresholdPercent: 50,
	}
}

func TestRunMigratesAndReclaimsAnUnderutilizedNode(t *testing.T) {
	orchestratorClient := fakeorchestrator.New()
	orchestratorClient.AddNode(batchNode("underutilized", 4000, 8192))
	orchestratorClient.AddNode(batchNode("peer", 4000, 8192))
	orchestratorClient.AddPod(batchTask("task-1", "underutilized", 500, 512))

	adapter := fakeadapter.NewAdapter()
	migrator := fakemigrator.New()
	c := newCleaner(orchestratorClient, adapter, migrator)

	require.NoError(t, c.Run(context.Background()))

	assert.Contains(t, migrator.Checkpoints, "task-1")
	assert.Contains(t, migrator.Exports, "task-1")
	assert.Contains(t, migrator.Imports, "task-1-migrated")
	assert.Contains(t, migrator.Restores, "task-1-migrated")
	assert.Contains(t, orchestratorClient.Evicted, "task-1")
	assert.Contains(t, orchestratorClient.Cordoned, "underutilized")
	assert.Contains(t, orchestratorClient.Deleted, "underutilized")
	assert.Contains(t, adapter.DeprovisionCalls, "underutilized")
}

func TestRunLeavesWellUtilizedNodesAlone(t *testing.T) {
	orchestratorClient := fakeorchestrator.New()
	orchestratorClient.AddNode(batchNode("busy", 1000, 1024))
	orchestratorClient.AddPod(batchTask("task-1", "busy", 900, 900))

	adapter := fakeadapter.NewAdapter()
	migrator := fakemigrator.New()
	c := newCleaner(orchestratorClient, adapter, migrator)

	require.NoError(t, c.Run(context.Background()))

	assert.Empty(t, migrator.Checkpoints)
	assert.Empty(t, orchestratorClient.Deleted)
}

func TestRunAbortsAndLeavesNodeInPlaceWhenMigrationFails(t *testing.T) {
	orchestratorClient := fakeorchestrator.New()
	orchestratorClient.AddNode(batchNode("underutilized", 4000, 8192))
	orchestratorClient.AddNode(batchNode("peer", 4000, 8192))
	orchestratorClient.AddPod(batchTask("task-1", "underutilized", 500, 512))

	adapter := fakeadapter.NewAdapter()
	migrator := fakemigrator.New()
	migrator.RestoreErr = fmt.Errorf("criu restore failed")
	c := newCleaner(orchestratorClient, adapter, migrator)

	require.NoError(t, c.Run(context.Background()))

	assert.Empty(t, orchestratorClient.Evicted)
	assert.Empty(t, orchestratorClient.Deleted)
	assert.Empty(t, adapter.DeprovisionCalls)
}

func TestRunAbortsWhenNoCandidateHasHeadroomForASecondTask(t *testing.T) {
	orchestratorClient := fakeorchestrator.New()
	orchestratorClient.AddNode(batchNode("underutilized", 4000, 8192))
	orchestratorClient.AddNode(batchNode("peer", 1200, 1200))
	orchestratorClient.AddPod(batchTask("task-1", "underutilized", 1000, 1000))
	orchestratorClient.AddPod(batchTask("task-2", "underutilized", 1000, 1000))

	adapter := fakeadapter.NewAdapter()
	migrator := fakemigrator.New()
	c := newCleaner(orchestratorClient, adapter, migrator)

	require.NoError(t, c.Run(context.Background()))

	// peer has room for exactly one of the two tasks; the second must
	// find no target and the whole node's reclaim aborts rather than
	// over-packing peer.
	assert.Empty(t, orchestratorClient.Deleted)
}

func TestRunSkipsCycleDuringDisruptionPauseWindow(t *testing.T) {
	orchestratorClient := fakeorchestrator.New()
	orchestratorClient.AddNode(batchNode("underutilized", 4000, 8192))
	orchestratorClient.AddPod(batchTask("task-1", "underutilized", 500, 512))

	adapter := fakeadapter.NewAdapter()
	migrator := fakemigrator.New()
	c := newCleaner(orchestratorClient, adapter, migrator)

	schedule, err := cron.ParseStandard("* * * * *")
	require.NoError(t, err)
	c.PauseSchedule = schedule
	c.PauseWindow = time.Hour

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, migrator.Checkpoints)
}
