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

func binnedNode(name string, runtime, cpu, mem int64) v1alpha1.NodeProfile {
	n := node(name, cpu, mem)
	n.Spec.Runtime = runtime
	return n
}

var _ = Describe("TimeBinBestFit", func() {
	const cycle = int64(300)

	It("prefers a node in the task's own bin over a later bin", func() {
		nodes := []v1alpha1.NodeProfile{
			binnedNode("own-bin", 310, 2000, 2048),
			binnedNode("later-bin", 610, 2000, 2048),
		}
		name, ok := packer.TimeBinBestFit(packer.Task{MilliCPU: 1000, MemoryMiB: 1024, RuntimeSeconds: 300}, nodes, cycle)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("own-bin"))
	})

	It("falls through to a later bin before an earlier one when the own bin has no room", func() {
		nodes := []v1alpha1.NodeProfile{
			binnedNode("earlier-bin", 10, 2000, 2048),
			binnedNode("later-bin", 610, 2000, 2048),
		}
		name, ok := packer.TimeBinBestFit(packer.Task{MilliCPU: 1000, MemoryMiB: 1024, RuntimeSeconds: 300}, nodes, cycle)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("later-bin"))
	})

	It("accepts an earlier bin only once no own or later bin fits", func() {
		nodes := []v1alpha1.NodeProfile{
			binnedNode("earlier-bin", 10, 2000, 2048),
		}
		name, ok := packer.TimeBinBestFit(packer.Task{MilliCPU: 1000, MemoryMiB: 1024, RuntimeSeconds: 300}, nodes, cycle)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("earlier-bin"))
	})

	It("reports no fit when nothing has room", func() {
		nodes := []v1alpha1.NodeProfile{binnedNode("tiny", 10, 100, 128)}
		_, ok := packer.TimeBinBestFit(packer.Task{MilliCPU: 1000, MemoryMiB: 1024, RuntimeSeconds: 300}, nodes, cycle)
		Expect(ok).To(BeFalse())
	})
})
