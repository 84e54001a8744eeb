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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/packer"
)

func node(name string, cpu, mem int64) v1alpha1.NodeProfile {
	n := v1alpha1.NodeProfile{}
	n.Name = name
	n.Spec.InstanceName = name
	n.Spec.CPUAvailable = cpu
	n.Spec.MemoryAvailable = mem
	return n
}

var _ = Describe("BestFit", func() {
	It("rejects a task when no node has enough room", func() {
		nodes := []v1alpha1.NodeProfile{node("a", 500, 512)}
		_, ok := packer.BestFit(packer.Task{MilliCPU: 1000, MemoryMiB: 1024}, nodes)
		Expect(ok).To(BeFalse())
	})

	It("picks the suitable node with the least available memory", func() {
		nodes := []v1alpha1.NodeProfile{
			node("roomy", 4000, 16384),
			node("tight", 2000, 2048),
			node("toosmall", 500, 512),
		}
		name, ok := packer.BestFit(packer.Task{MilliCPU: 1000, MemoryMiB: 1024}, nodes)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("tight"))
	})

	It("ignores a node with enough memory but not enough CPU", func() {
		nodes := []v1alpha1.NodeProfile{
			node("cpu-starved", 500, 16384),
			node("balanced", 2000, 2048),
		}
		name, ok := packer.BestFit(packer.Task{MilliCPU: 1000, MemoryMiB: 1024}, nodes)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("balanced"))
	})

	It("breaks a memory tie on insertion order of profiles", func() {
		nodes := []v1alpha1.NodeProfile{
			node("first", 2000, 2048),
			node("second", 2000, 2048),
			node("third", 2000, 2048),
		}
		name, ok := packer.BestFit(packer.Task{MilliCPU: 1000, MemoryMiB: 1024}, nodes)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("first"))
	})
})
