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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/autoscaler"
	fakeadapter "github.com/htas-io/htas/pkg/cloudprovider/fake"
	fakeorchestrator "github.com/htas-io/htas/pkg/orchestrator/fake"
	"github.com/htas-io/htas/pkg/test"
)

func newAutoscaler(t *testing.T) (*autoscaler.Autoscaler, *fakeorchestrator.Client, *fakeadapter.Adapter) {
	t.Helper()
	orchestratorClient := fakeorchestrator.New()
	adapter := fakeadapter.NewAdapter()
	a := &autoscaler.Autoscaler{
		Orchestrator:        orchestratorClient,
		Adapter:             adapter,
		Recorder:            test.NewEventRecorder(),
		Flavors:             fakeadapter.DefaultFlavors(),
		ScalingCycleSeconds: 300,
	}
	return a, orchestratorClient, adapter
}

func TestConsumeResizesNodePoolForStillPendingTasks(t *testing.T) {
	a, orchestratorClient, adapter := newAutoscaler(t)
	orchestratorClient.AddPod(&v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p1"},
		Spec: v1.PodSpec{Containers: []v1.Container{{
			Resources: v1.ResourceRequirements{Requests: v1.ResourceList{
				v1.ResourceCPU:    *resource.NewMilliQuantity(2000, resource.DecimalSI),
				v1.ResourceMemory: *resource.NewQuantity(4096*1024*1024, resource.BinarySI),
			}},
		}}},
		Status: v1.PodStatus{Phase: v1.PodPending},
	})
	require.NoError(t, orchestratorClient.CreateAutoScaleRequest(context.Background(), &v1alpha1.AutoScaleRequest{
		ObjectMeta: metav1.ObjectMeta{Name: "asr-1"},
		Spec: v1alpha1.AutoScaleRequestSpec{
			WorkloadType: v1alpha1.WorkloadTypeLongRunning,
			PodNames:     []string{"p1"},
		},
	}))

	require.NoError(t, a.Run(context.Background()))

	assert.Len(t, adapter.ResizeCalls, 1)
	assert.Equal(t, v1alpha1.WorkloadTypeLongRunning, adapter.ResizeCalls[0].WorkloadType)
	assert.Positive(t, adapter.ResizeCalls[0].Delta)

	remaining, err := orchestratorClient.AutoScaleRequests(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestConsumeDropsStaleRequestWithoutResizing(t *testing.T) {
	a, orchestratorClient, adapter := newAutoscaler(t)
	orchestratorClient.AddPod(&v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "p1"},
		Status:     v1.PodStatus{Phase: v1.PodRunning},
	})
	require.NoError(t, orchestratorClient.CreateAutoScaleRequest(context.Background(), &v1alpha1.AutoScaleRequest{
		ObjectMeta: metav1.ObjectMeta{Name: "asr-1"},
		Spec: v1alpha1.AutoScaleRequestSpec{
			WorkloadType: v1alpha1.WorkloadTypeLongRunning,
			PodNames:     []string{"p1"},
		},
	}))

	require.NoError(t, a.Run(context.Background()))

	assert.Empty(t, adapter.ResizeCalls)
	remaining, err := orchestratorClient.AutoScaleRequests(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
