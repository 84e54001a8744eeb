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

// Package fake is an in-memory orchestrator.Client, playing the role the
// teacher's pkg/test fake clients play for controller-runtime's
// client.Client in unit tests that should not require a live API server.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	v1 "k8s.io/api/core/v1"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/orchestrator"
)

var _ orchestrator.Client = (*Client)(nil)

// Client is an in-memory orchestrator.Client backed by plain maps,
// guarded by a single mutex; every HTAS daemon reads and writes it
// serially per cycle so contention is not a concern in tests.
type Client struct {
	mu sync.Mutex

	Pods              map[string]*v1.Pod
	Nodes             map[string]*v1.Node
	NodeProfiles      map[string]*v1alpha1.NodeProfile
	AutoScaleRequests map[string]*v1alpha1.AutoScaleRequest

	Evicted  []string
	Cordoned []string
	Deleted  []string
}

func New() *Client {
	return &Client{
		Pods:              map[string]*v1.Pod{},
		Nodes:             map[string]*v1.Node{},
		NodeProfiles:      map[string]*v1alpha1.NodeProfile{},
		AutoScaleRequests: map[string]*v1alpha1.AutoScaleRequest{},
	}
}

func (c *Client) AddPod(p *v1.Pod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Pods[p.Name] = p
}

func (c *Client) AddNode(n *v1.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Nodes[n.Name] = n
}

func (c *Client) AddNodeProfile(p *v1alpha1.NodeProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NodeProfiles[p.Name] = p
}

func (c *Client) PendingTasks(context.Context) ([]v1.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []v1.Pod
	for _, p := range c.Pods {
		if p.Spec.SchedulerName != v1alpha1.SchedulerName {
			continue
		}
		if p.Status.Phase != v1.PodPending {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (c *Client) GetTask(_ context.Context, name string) (*v1.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.Pods[name]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Bind applies the effect of a cloudprovider.Adapter.Bind call for tests
// that exercise the packer loop end-to-end against this fake together
// with cloudprovider/fake.Adapter.
func (c *Client) Bind(podName, nodeName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.Pods[podName]; ok {
		p.Spec.NodeName = nodeName
		p.Status.Phase = v1.PodRunning
	}
}

func (c *Client) Nodes(context.Context) ([]v1.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]v1.Node, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		out = append(out, *n)
	}
	return out, nil
}

func (c *Client) RunningTasksOnNode(_ context.Context, nodeName string) ([]v1.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []v1.Pod
	for _, p := range c.Pods {
		if p.Spec.NodeName == nodeName && p.Status.Phase == v1.PodRunning {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (c *Client) CordonNode(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Cordoned = append(c.Cordoned, name)
	if n, ok := c.Nodes[name]; ok {
		n.Spec.Unschedulable = true
	}
	return nil
}

func (c *Client) DeleteNode(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deleted = append(c.Deleted, name)
	delete(c.Nodes, name)
	return nil
}

func (c *Client) EvictTask(_ context.Context, podName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Evicted = append(c.Evicted, podName)
	delete(c.Pods, podName)
	return nil
}

func (c *Client) CreateReplicaTask(_ context.Context, pod *v1.Pod, suffix, targetNode string) (*v1.Pod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := pod.Name + suffix
	if existing, ok := c.Pods[name]; ok {
		cp := *existing
		return &cp, nil
	}
	replica := pod.DeepCopy()
	replica.Name = name
	replica.Spec.NodeName = targetNode
	replica.Spec.RestartPolicy = v1.RestartPolicyNever
	c.Pods[name] = replica
	cp := *replica
	return &cp, nil
}

func (c *Client) WaitTaskRunning(_ context.Context, name string, timeout time.Duration) (*v1.Pod, error) {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		pod, ok := c.Pods[name]
		var running *v1.Pod
		if ok && pod.Status.Phase == v1.PodRunning {
			cp := *pod
			running = &cp
		}
		c.mu.Unlock()
		if running != nil {
			return running, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("waiting for task %s to become running: timed out", name)
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *Client) NodeProfiles(context.Context) ([]v1alpha1.NodeProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]v1alpha1.NodeProfile, 0, len(c.NodeProfiles))
	for _, p := range c.NodeProfiles {
		out = append(out, *p)
	}
	return out, nil
}

func (c *Client) UpsertNodeProfile(_ context.Context, profile *v1alpha1.NodeProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *profile
	c.NodeProfiles[profile.Name] = &cp
	return nil
}

func (c *Client) DeleteNodeProfile(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.NodeProfiles, name)
	return nil
}

func (c *Client) AutoScaleRequests(context.Context) ([]v1alpha1.AutoScaleRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]v1alpha1.AutoScaleRequest, 0, len(c.AutoScaleRequests))
	for _, r := range c.AutoScaleRequests {
		out = append(out, *r)
	}
	return out, nil
}

func (c *Client) CreateAutoScaleRequest(_ context.Context, req *v1alpha1.AutoScaleRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.AutoScaleRequests[req.Name]; exists {
		return nil
	}
	cp := *req
	c.AutoScaleRequests[req.Name] = &cp
	return nil
}

func (c *Client) DeleteAutoScaleRequest(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.AutoScaleRequests, name)
	return nil
}
