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

// Package events builds the orchestrator Events HTAS's four daemons emit
// against Tasks (Pods), Nodes, and AutoScaleRequests, the way the teacher's
// pkg/events package builds Events for its own controllers: plain
// constructor funcs returning an Event value, published through a small
// Recorder interface so tests can assert on them without a live API server.
package events

import (
	"fmt"
	"sync"
	"time"

	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/flowcontrol"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
)

// Event is a single record destined for the orchestrator's event stream.
// DedupeValues collapses repeated identical events (e.g. the same task
// failing to schedule every Packer cycle) into one recorded event per
// DedupeTimeout.
type Event struct {
	InvolvedObject runtime.Object
	Type           string
	Reason         string
	Message        string
	DedupeValues   []string
	DedupeTimeout  time.Duration
	RateLimiter    flowcontrol.RateLimiter
}

const DefaultDedupeTimeout = 30 * time.Second

// Recorder publishes Events, deduplicating repeats within DedupeTimeout.
type Recorder interface {
	Publish(e Event)
}

type recorder struct {
	rec record.EventRecorder

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewRecorder wraps a client-go record.EventRecorder (as returned by
// controller-runtime's manager.GetEventRecorderFor) with HTAS's
// deduplication behavior.
func NewRecorder(rec record.EventRecorder) Recorder {
	return &recorder{rec: rec, seen: map[string]time.Time{}}
}

func (r *recorder) Publish(e Event) {
	key := dedupeKey(e)
	if key != "" {
		timeout := e.DedupeTimeout
		if timeout == 0 {
			timeout = DefaultDedupeTimeout
		}
		r.mu.Lock()
		if last, ok := r.seen[key]; ok && time.Since(last) < timeout {
			r.mu.Unlock()
			return
		}
		r.seen[key] = time.Now()
		r.mu.Unlock()
	}
	if e.RateLimiter != nil && !e.RateLimiter.TryAccept() {
		return
	}
	r.rec.Event(e.InvolvedObject, e.Type, e.Reason, e.Message)
}

func dedupeKey(e Event) string {
	if len(e.DedupeValues) == 0 {
		return ""
	}
	key := e.Reason
	for _, v := range e.DedupeValues {
		key += "/" + v
	}
	return key
}

// TaskBound records a Task Packer bind decision.
func TaskBound(pod *v1.Pod, node *v1.Node) Event {
	return Event{
		InvolvedObject: pod,
		Type:           v1.EventTypeNormal,
		Reason:         "Bound",
		Message:        fmt.Sprintf("Bound task to node %s", node.Name),
		DedupeValues:   []string{string(pod.UID), node.Name},
	}
}

// TaskFailedToSchedule records a Packer cycle that could not place pod
// into any bin, the reason it triggered an AutoScaleRequest.
func TaskFailedToSchedule(pod *v1.Pod, err error) Event {
	return Event{
		InvolvedObject: pod,
		Type:           v1.EventTypeWarning,
		Reason:         "FailedScheduling",
		Message:        fmt.Sprintf("no node fit the task: %s", err),
		DedupeValues:   []string{string(pod.UID)},
	}
}

// AutoScaleRequestCreated records the Packer requesting additional
// capacity for a workload type.
func AutoScaleRequestCreated(req *v1alpha1.AutoScaleRequest) Event {
	return Event{
		InvolvedObject: req,
		Type:           v1.EventTypeNormal,
		Reason:         "AutoScaleRequested",
		Message:        fmt.Sprintf("requested capacity for %d pending %s task(s)", len(req.Spec.PodNames), req.Spec.WorkloadType),
		DedupeValues:   []string{req.Name},
	}
}

// NodePoolResized records the Autoscaler's ResizeNodePool call.
func NodePoolResized(req *v1alpha1.AutoScaleRequest, poolName string, delta int) Event {
	return Event{
		InvolvedObject: req,
		Type:           v1.EventTypeNormal,
		Reason:         "NodePoolResized",
		Message:        fmt.Sprintf("resized %s node pool by %+d for %s workload", poolName, delta, req.Spec.WorkloadType),
		DedupeValues:   []string{req.Name, poolName},
	}
}

// MigrationStarted records the Instance Cleaner beginning a checkpoint
// migration of task off node.
func MigrationStarted(pod *v1.Pod, from, to *v1.Node) Event {
	return Event{
		InvolvedObject: pod,
		Type:           v1.EventTypeNormal,
		Reason:         "MigrationStarted",
		Message:        fmt.Sprintf("migrating from %s to %s", from.Name, to.Name),
		DedupeValues:   []string{string(pod.UID), from.Name},
	}
}

// MigrationFailed records a migration aborted at any of the seven steps;
// the Instance Cleaner leaves the node in place on this outcome.
func MigrationFailed(pod *v1.Pod, from *v1.Node, err error) Event {
	return Event{
		InvolvedObject: pod,
		Type:           v1.EventTypeWarning,
		Reason:         "MigrationFailed",
		Message:        fmt.Sprintf("migration off %s aborted: %s", from.Name, err),
		DedupeValues:   []string{string(pod.UID), from.Name, err.Error()},
	}
}

// NodeReclaimed records a node cordoned, drained of its surviving tasks,
// deleted from the orchestrator, and deprovisioned from the cloud.
func NodeReclaimed(node *v1.Node) Event {
	return Event{
		InvolvedObject: node,
		Type:           v1.EventTypeNormal,
		Reason:         "Reclaimed",
		Message:        "node fully migrated, cordoned, and deprovisioned",
		DedupeValues:   []string{node.Name},
	}
}
