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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NodeProfileSpec is the Resource Profiler's reconciled projection of a
// single node's resource state. The Profiler is the single writer; the
// Packer and the Autoscaler are readers. cpuCapacity/cpuAvailable are in
// millicores, memoryCapacity/memoryAvailable are in MiB, matching the wire
// shape in spec.md section 6.
type NodeProfileSpec struct {
	InstanceName    string `json:"instanceName"`
	InstanceType    string `json:"instanceType"`
	CPUCapacity     int64  `json:"cpuCapacity"`
	MemoryCapacity  int64  `json:"memoryCapacity"`
	CPUAvailable    int64  `json:"cpuAvailable"`
	MemoryAvailable int64  `json:"memoryAvailable"`
	// Runtime is the node's age-in-epoch in seconds ("runtime-age" in
	// spec.md). Owned by the Profiler as now - creationTimestamp; never
	// reset on reconcile (see design note in spec.md section 9).
	Runtime int64 `json:"runtime"`
	// PoolTag is not part of the external wire contract in spec.md section
	// 6, but is carried on the spec so Packer/Autoscaler partitioning
	// doesn't have to infer pool membership from substring matches on
	// instanceName the way original_source/task_packer.py does. See
	// DESIGN.md for the resolution of this open question.
	PoolTag string `json:"poolTag,omitempty"`
}

// NodeProfile is a declarative, externally visible projection of Node
// state. Single-writer (Resource Profiler) / multi-reader (Task Packer,
// Autoscaler). Readers must tolerate staleness up to one reconcile period.
//
// +kubebuilder:object:root=true
type NodeProfile struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec NodeProfileSpec `json:"spec,omitempty"`
}

// NodeProfileList contains a list of NodeProfile.
//
// +kubebuilder:object:root=true
type NodeProfileList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []NodeProfile `json:"items"`
}
