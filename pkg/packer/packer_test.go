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

package packer_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	fakeadapter "github.com/htas-io/htas/pkg/cloudprovider/fake"
	fakeorchestrator "github.com/htas-io/htas/pkg/orchestrator/fake"
	"github.com/htas-io/htas/pkg/packer"
	"github.com/htas-io/htas/pkg/test"
)

func pendingPod(name, workloadType string, milliCPU, memoryMiB int64) *v1.Pod {
	return &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "default",
			Labels:    map[string]string{v1alpha1.WorkloadTypeLabel: workloadType},
		},
		Spec: v1.PodSpec{
			SchedulerName: v1alpha1.SchedulerName,
			Containers: []v1.Container{{
				Name: "main",
				Resources: v1.ResourceRequirements{
					Requests: v1.ResourceList{
						v1.ResourceCPU:    *resource.NewMilliQuantity(milliCPU, resource.DecimalSI),
						v1.ResourceMemory: *resource.NewQuantity(memoryMiB*1024*1024, resource.BinarySI),
					},
				},
			}},
		},
		Status: v1.PodStatus{Phase: v1.PodPending},
	}
}

func nodeProfile(name, poolTag string, cpuAvail, memAvail int64) *v1alpha1.NodeProfile {
	return &v1alpha1.NodeProfile{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: v1alpha1.NodeProfileSpec{
			InstanceName:    name,
			CPUAvailable:    cpuAvail,
			MemoryAvailable: memAvail,
			PoolTag:         poolTag,
		},
	}
}

var _ = Describe("Packer", func() {
	var (
		orchestratorClient *fakeorchestrator.Client
		adapter            *fakeadapter.Adapter
		recorder           *test.EventRecorder
		p                  *packer.Packer
	)

	BeforeEach(func() {
		orchestratorClient = fakeorchestrator.New()
		adapter = fakeadapter.NewAdapter()
		recorder = test.NewEventRecorder()
		p = &packer.Packer{
			Orchestrator:        orchestratorClient,
			Adapter:             adapter,
			Recorder:            recorder,
			ScalingCycleSeconds: 300,
		}
	})

	It("binds a long-running task to the node profile with the least available headroom", func() {
		orchestratorClient.AddPod(pendingPod("web-1", v1alpha1.WorkloadTypeLongRunning, 1000, 1024))
		orchestratorClient.AddNodeProfile(nodeProfile("roomy", v1alpha1.PoolTagLongRunning, 4000, 16384))
		orchestratorClient.AddNodeProfile(nodeProfile("tight", v1alpha1.PoolTagLongRunning, 2000, 2048))

		Expect(p.Run(context.Background())).To(Succeed())

		Expect(adapter.BindCalls).To(HaveLen(1))
		Expect(adapter.BindCalls[0].NodeName).To(Equal("tight"))
	})

	It("requests autoscale capacity when nothing fits", func() {
		orchestratorClient.AddPod(pendingPod("batch-1", v1alpha1.WorkloadTypeBatch, 4000, 8192))
		orchestratorClient.AddNodeProfile(nodeProfile("small", v1alpha1.PoolTagBatch, 500, 512))

		Expect(p.Run(context.Background())).To(Succeed())

		Expect(adapter.BindCalls).To(BeEmpty())
		requests, err := orchestratorClient.AutoScaleRequests(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Spec.WorkloadType).To(Equal(v1alpha1.WorkloadTypeBatch))
		Expect(requests[0].Spec.PodNames).To(ConsistOf("batch-1"))
	})

	It("does nothing when there are no pending tasks", func() {
		Expect(p.Run(context.Background())).To(Succeed())
		Expect(adapter.BindCalls).To(BeEmpty())
	})

	It("normalizes an unrecognized workload-type label to batch", func() {
		orchestratorClient.AddPod(pendingPod("mystery-1", "quantum", 500, 512))
		orchestratorClient.AddNodeProfile(nodeProfile("small", v1alpha1.PoolTagBatch, 4000, 8192))

		Expect(p.Run(context.Background())).To(Succeed())

		Expect(adapter.BindCalls).To(HaveLen(1))
		Expect(adapter.BindCalls[0].PodName).To(Equal("mystery-1"))
	})
})
