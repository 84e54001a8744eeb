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

package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	kubefake "k8s.io/client-go/kubernetes/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/orchestrator"
)

func newTestClient(t *testing.T, objs ...runtime.Object) orchestrator.Client {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, v1.AddToScheme(scheme))
	require.NoError(t, v1alpha1.AddToScheme(scheme))
	builder := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...)
	return orchestrator.New(builder.Build(), kubefake.NewSimpleClientset())
}

func TestPendingTasksFiltersByPhaseAndSchedulerName(t *testing.T) {
	pending := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "pending-1", Namespace: orchestrator.Namespace},
		Spec:       v1.PodSpec{SchedulerName: v1alpha1.SchedulerName},
		Status:     v1.PodStatus{Phase: v1.PodPending},
	}
	running := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "running-1", Namespace: orchestrator.Namespace},
		Spec:       v1.PodSpec{SchedulerName: v1alpha1.SchedulerName},
		Status:     v1.PodStatus{Phase: v1.PodRunning},
	}
	otherScheduler := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "default-sched", Namespace: orchestrator.Namespace},
		Spec:       v1.PodSpec{SchedulerName: "default-scheduler"},
		Status:     v1.PodStatus{Phase: v1.PodPending},
	}

	c := newTestClient(t, pending, running, otherScheduler)
	tasks, err := c.PendingTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "pending-1", tasks[0].Name)
}

func TestGetTaskReturnsNilForMissingPod(t *testing.T) {
	c := newTestClient(t)
	pod, err := c.GetTask(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, pod)
}

func TestCordonNodeIsIdempotent(t *testing.T) {
	node := &v1.Node{ObjectMeta: metav1.ObjectMeta{Name: "n1"}}
	c := newTestClient(t, node)

	require.NoError(t, c.CordonNode(context.Background(), "n1"))
	require.NoError(t, c.CordonNode(context.Background(), "n1"))
}

func TestCordonNodeOnMissingNodeIsNotAnError(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.CordonNode(context.Background(), "missing"))
}

func TestDeleteNodeOnMissingNodeIsNotAnError(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.DeleteNode(context.Background(), "missing"))
}

func TestCreateReplicaTaskReturnsExistingReplicaOnRetry(t *testing.T) {
	source := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "task-1", Namespace: orchestrator.Namespace},
		Spec:       v1.PodSpec{NodeName: "source-node"},
	}
	c := newTestClient(t, source)

	first, err := c.CreateReplicaTask(context.Background(), source, "-migrated", "target-node")
	require.NoError(t, err)
	assert.Equal(t, "target-node", first.Spec.NodeName)

	second, err := c.CreateReplicaTask(context.Background(), source, "-migrated", "target-node")
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
}

func TestWaitTaskRunningTimesOutWhenPodNeverBecomesReady(t *testing.T) {
	pod := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "task-1", Namespace: orchestrator.Namespace},
		Status:     v1.PodStatus{Phase: v1.PodPending},
	}
	c := newTestClient(t, pod)

	_, err := c.WaitTaskRunning(context.Background(), "task-1", 10*time.Millisecond)
	assert.Error(t, err)
}

func TestUpsertNodeProfileCreatesThenUpdates(t *testing.T) {
	c := newTestClient(t)
	profile := &v1alpha1.NodeProfile{
		ObjectMeta: metav1.ObjectMeta{Name: "n1"},
		Spec:       v1alpha1.NodeProfileSpec{CPUCapacity: 1000},
	}
	require.NoError(t, c.UpsertNodeProfile(context.Background(), profile))

	profile.Spec.CPUCapacity = 2000
	require.NoError(t, c.UpsertNodeProfile(context.Background(), profile))

	profiles, err := c.NodeProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, int64(2000), profiles[0].Spec.CPUCapacity)
}

func TestCreateAutoScaleRequestTreatsAlreadyExistsAsSuccess(t *testing.T) {
	req := &v1alpha1.AutoScaleRequest{
		ObjectMeta: metav1.ObjectMeta{Name: "asr-1"},
		Spec:       v1alpha1.AutoScaleRequestSpec{WorkloadType: v1alpha1.WorkloadTypeBatch},
	}
	c := newTestClient(t, req)
	assert.NoError(t, c.CreateAutoScaleRequest(context.Background(), req))
}

func TestDeleteAutoScaleRequestOnMissingRequestIsNotAnError(t *testing.T) {
	c := newTestClient(t)
	assert.NoError(t, c.DeleteAutoScaleRequest(context.Background(), "missing"))
}
