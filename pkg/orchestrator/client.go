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

// Package orchestrator narrows the Kubernetes object store every HTAS
// daemon reads and writes against to the handful of operations the
// scheduling algorithms need: listing pending Tasks (Pods), listing and
// cordoning Nodes, and CRUD on the two custom resources, NodeProfile and
// AutoScaleRequest. It plays the role the teacher's controllers play
// directly against a controller-runtime client.Client, generalized into an
// interface so pkg/packer, pkg/autoscaler, pkg/profiler, and pkg/cleaner
// can run against either a live cluster or the in-memory pkg/orchestrator/fake
// implementation in tests.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	v1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
)

const Namespace = "default"

// Client is the orchestrator object store seam.
type Client interface {
	// PendingTasks lists Pods gated to the htas-scheduler whose phase is
	// Pending, in the order the object store lists them.
	PendingTasks(ctx context.Context) ([]v1.Pod, error)
	// GetTask fetches a single Pod by name, or nil if it no longer
	// exists (at-least-once delivery: a vanished pod is not an error).
	GetTask(ctx context.Context, name string) (*v1.Pod, error)

	// Nodes lists every Node carrying the htas workload label.
	Nodes(ctx context.Context) ([]v1.Node, error)
	// RunningTasksOnNode lists Running pods bound to nodeName, the
	// usage the Resource Profiler subtracts from allocatable capacity.
	RunningTasksOnNode(ctx context.Context, nodeName string) ([]v1.Pod, error)
	// CordonNode marks node unschedulable.
	CordonNode(ctx context.Context, name string) error
	// DeleteNode removes node from the orchestrator. Deleting a node
	// that no longer exists is treated as success.
	DeleteNode(ctx context.Context, name string) error
	// EvictTask evicts pod from its current node; the Instance Cleaner
	// calls it as the last migration step, once the replica is restored.
	EvictTask(ctx context.Context, podName string) error
	// CreateReplicaTask creates a single-container replica of pod pinned
	// to targetNode by direct nodeName assignment, named pod.Name+suffix,
	// bypassing the Packer entirely. Creating a replica that already
	// exists (a retry of a previously aborted migration) returns the
	// existing replica rather than an error.
	CreateReplicaTask(ctx context.Context, pod *v1.Pod, suffix, targetNode string) (*v1.Pod, error)
	// WaitTaskRunning polls name until its phase is Running or timeout
	// elapses.
	WaitTaskRunning(ctx context.Context, name string, timeout time.Duration) (*v1.Pod, error)

	// NodeProfiles lists every NodeProfile.
	NodeProfiles(ctx context.Context) ([]v1alpha1.NodeProfile, error)
	// UpsertNodeProfile creates or updates the NodeProfile named after
	// its node.
	UpsertNodeProfile(ctx context.Context, profile *v1alpha1.NodeProfile) error
	// DeleteNodeProfile removes a NodeProfile for a node that's gone.
	DeleteNodeProfile(ctx context.Context, name string) error

	// AutoScaleRequests lists every pending AutoScaleRequest.
	AutoScaleRequests(ctx context.Context) ([]v1alpha1.AutoScaleRequest, error)
	// CreateAutoScaleRequest is idempotent on name collision: an
	// AlreadyExists error for the same canonical name is treated as
	// success, since the Packer may re-derive the same record across
	// cycles before the Autoscaler consumes it.
	CreateAutoScaleRequest(ctx context.Context, req *v1alpha1.AutoScaleRequest) error
	// DeleteAutoScaleRequest removes a record after consumption.
	// Deleting one that's already gone is treated as success.
	DeleteAutoScaleRequest(ctx context.Context, name string) error
}

var _ Client = (*clusterClient)(nil)

type clusterClient struct {
	client.Client
	kube kubernetes.Interface
}

// New wraps a controller-runtime client.Client (CRUD against Pods, Nodes,
// NodeProfiles, AutoScaleRequests) and a client-go kubernetes.Interface
// (the Eviction subresource EvictTask posts to) into
// a single orchestrator.Client.
func New(c client.Client, kube kubernetes.Interface) Client {
	return &clusterClient{Client: c, kube: kube}
}

func (c *clusterClient) PendingTasks(ctx context.Context) ([]v1.Pod, error) {
	list := &v1.PodList{}
	if err := c.List(ctx, list, client.InNamespace(Namespace), client.MatchingFields{"spec.schedulerName": v1alpha1.SchedulerName}); err != nil {
		// Field selector indices aren't always registered (e.g. the
		// fake manager in tests); fall back to listing everything in
		// the namespace and filtering in-process.
		list = &v1.PodList{}
		if err := c.List(ctx, list, client.InNamespace(Namespace)); err != nil {
			return nil, err
		}
	}
	out := make([]v1.Pod, 0, len(list.Items))
	for _, p := range list.Items {
		if p.Spec.SchedulerName != v1alpha1.SchedulerName {
			continue
		}
		if p.Status.Phase != v1.PodPending {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *clusterClient) GetTask(ctx context.Context, name string) (*v1.Pod, error) {
	pod := &v1.Pod{}
	if err := c.Get(ctx, client.ObjectKey{Namespace: Namespace, Name: name}, pod); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return pod, nil
}

func (c *clusterClient) Nodes(ctx context.Context) ([]v1.Node, error) {
	list := &v1.NodeList{}
	if err := c.List(ctx, list, client.HasLabels{v1alpha1.NodeWorkloadLabel}); err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *clusterClient) CordonNode(ctx context.Context, name string) error {
	node := &v1.Node{}
	if err := c.Get(ctx, client.ObjectKey{Name: name}, node); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if node.Spec.Unschedulable {
		return nil
	}
	node.Spec.Unschedulable = true
	return c.Update(ctx, node)
}

func (c *clusterClient) RunningTasksOnNode(ctx context.Context, nodeName string) ([]v1.Pod, error) {
	list := &v1.PodList{}
	if err := c.List(ctx, list, client.MatchingFields{"spec.nodeName": nodeName}); err != nil {
		list = &v1.PodList{}
		if err := c.List(ctx, list, client.InNamespace(Namespace)); err != nil {
			return nil, err
		}
	}
	out := make([]v1.Pod, 0, len(list.Items))
	for _, p := range list.Items {
		if p.Spec.NodeName != nodeName {
			continue
		}
		if p.Status.Phase != v1.PodRunning {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *clusterClient) DeleteNode(ctx context.Context, name string) error {
	node := &v1.Node{ObjectMeta: metav1.ObjectMeta{Name: name}}
	if err := c.Delete(ctx, node); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}

func (c *clusterClient) EvictTask(ctx context.Context, podName string) error {
	eviction := &policyv1.Eviction{ObjectMeta: metav1.ObjectMeta{Name: podName, Namespace: Namespace}}
	err := c.kube.PolicyV1().Evictions(Namespace).Evict(ctx, eviction)
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (c *clusterClient) CreateReplicaTask(ctx context.Context, pod *v1.Pod, suffix, targetNode string) (*v1.Pod, error) {
	name := pod.Name + suffix
	replica := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: pod.Namespace,
			Labels:    pod.Labels,
		},
		Spec: *pod.Spec.DeepCopy(),
	}
	replica.Spec.NodeName = targetNode
	replica.Spec.RestartPolicy = v1.RestartPolicyNever

	if err := c.Create(ctx, replica); err != nil {
		if apierrors.IsAlreadyExists(err) {
			existing := &v1.Pod{}
			if getErr := c.Get(ctx, client.ObjectKey{Namespace: pod.Namespace, Name: name}, existing); getErr != nil {
				return nil, getErr
			}
			return existing, nil
		}
		return nil, err
	}
	return replica, nil
}

func (c *clusterClient) WaitTaskRunning(ctx context.Context, name string, timeout time.Duration) (*v1.Pod, error) {
	var result *v1.Pod
	err := wait.PollUntilContextTimeout(ctx, 2*time.Second, timeout, true, func(ctx context.Context) (bool, error) {
		pod := &v1.Pod{}
		if err := c.Get(ctx, client.ObjectKey{Namespace: Namespace, Name: name}, pod); err != nil {
			if apierrors.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if pod.Status.Phase == v1.PodRunning {
			result = pod
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for task %s to become running: %w", name, err)
	}
	return result, nil
}

func (c *clusterClient) NodeProfiles(ctx context.Context) ([]v1alpha1.NodeProfile, error) {
	list := &v1alpha1.NodeProfileList{}
	if err := c.List(ctx, list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *clusterClient) UpsertNodeProfile(ctx context.Context, profile *v1alpha1.NodeProfile) error {
	existing := &v1alpha1.NodeProfile{}
	err := c.Get(ctx, client.ObjectKey{Name: profile.Name}, existing)
	switch {
	case apierrors.IsNotFound(err):
		return c.Create(ctx, profile)
	case err != nil:
		return err
	default:
		existing.Spec = profile.Spec
		return c.Update(ctx, existing)
	}
}

func (c *clusterClient) DeleteNodeProfile(ctx context.Context, name string) error {
	profile := &v1alpha1.NodeProfile{ObjectMeta: metav1.ObjectMeta{Name: name}}
	if err := c.Delete(ctx, profile); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}

func (c *clusterClient) AutoScaleRequests(ctx context.Context) ([]v1alpha1.AutoScaleRequest, error) {
	list := &v1alpha1.AutoScaleRequestList{}
	if err := c.List(ctx, list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *clusterClient) CreateAutoScaleRequest(ctx context.Context, req *v1alpha1.AutoScaleRequest) error {
	err := c.Create(ctx, req)
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (c *clusterClient) DeleteAutoScaleRequest(ctx context.Context, name string) error {
	req := &v1alpha1.AutoScaleRequest{ObjectMeta: metav1.ObjectMeta{Name: name}}
	if err := c.Delete(ctx, req); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}
