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

package profiler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	fakeorchestrator "github.com/htas-io/htas/pkg/orchestrator/fake"
	"github.com/htas-io/htas/pkg/profiler"
)

func TestReconcileComputesAvailableFromAllocatableLessRunningRequests(t *testing.T) {
	orchestratorClient := fakeorchestrator.New()
	orchestratorClient.AddNode(&v1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "n1", Labels: map[string]string{
			v1alpha1.NodeWorkloadLabel: v1alpha1.PoolTagBatch,
		}},
		Status: v1.NodeStatus{Allocatable: v1.ResourceList{
			v1.ResourceCPU:    *resource.NewMilliQuantity(4000, resource.DecimalSI),
			v1.ResourceMemory: *resource.NewQuantity(8192*1024*1024, resource.BinarySI),
		}},
	})
	orchestratorClient.AddPod(&v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "running-1"},
		Spec: v1.PodSpec{NodeName: "n1", Containers: []v1.Container{{
			Resources: v1.ResourceRequirements{Requests: v1.ResourceList{
				v1.ResourceCPU:    *resource.NewMilliQuantity(1000, resource.DecimalSI),
				v1.ResourceMemory: *resource.NewQuantity(1024*1024*1024, resource.BinarySI),
			}},
		}}},
		Status: v1.PodStatus{Phase: v1.PodRunning},
	})

	p := &profiler.Profiler{Orchestrator: orchestratorClient, Snapshot: profiler.NewSnapshot()}
	require.NoError(t, p.Reconcile(context.Background()))

	profiles := p.Snapshot.Get()
	require.Len(t, profiles, 1)
	assert.Equal(t, int64(4000), profiles[0].Spec.CPUCapacity)
	assert.Equal(t, int64(3000), profiles[0].Spec.CPUAvailable)
	assert.Equal(t, int64(8192), profiles[0].Spec.MemoryCapacity)
	assert.Equal(t, int64(7168), profiles[0].Spec.MemoryAvailable)
	assert.Equal(t, v1alpha1.PoolTagBatch, profiles[0].Spec.PoolTag)
}

func TestReconcileDeletesProfilesForNodesThatNoLongerExist(t *testing.T) {
	orchestratorClient := fakeorchestrator.New()
	require.NoError(t, orchestratorClient.UpsertNodeProfile(context.Background(), &v1alpha1.NodeProfile{
		ObjectMeta: metav1.ObjectMeta{Name: "gone"},
	}))

	p := &profiler.Profiler{Orchestrator: orchestratorClient, Snapshot: profiler.NewSnapshot()}
	require.NoError(t, p.Reconcile(context.Background()))

	remaining, err := orchestratorClient.NodeProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Empty(t, p.Snapshot.Get())
}

func TestSnapshotGetReturnsLastSetProfiles(t *testing.T) {
	snapshot := profiler.NewSnapshot()
	snapshot.Set([]v1alpha1.NodeProfile{{ObjectMeta: metav1.ObjectMeta{Name: "stale-but-good"}}})
	assert.Equal(t, "stale-but-good", snapshot.Get()[0].Name)
}
