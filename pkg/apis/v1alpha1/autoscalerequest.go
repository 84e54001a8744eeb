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

// WorkloadType values accepted on an AutoScaleRequest.
const (
	WorkloadTypeBatch       = "batch"
	WorkloadTypeLongRunning = "long-running"
)

// AutoScaleRequestSpec names the Pending tasks a Packer cycle couldn't
// place, and the workload class to provision capacity for.
type AutoScaleRequestSpec struct {
	WorkloadType string   `json:"workloadType"`
	PodNames     []string `json:"podNames"`
}

// AutoScaleRequest is a declarative trigger created by the Task Packer and
// consumed (then deleted) by the Autoscaler. At most one Autoscaler
// consumes each record; successful consumption ends with deletion.
//
// +kubebuilder:object:root=true
type AutoScaleRequest struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec AutoScaleRequestSpec `json:"spec,omitempty"`
}

// AutoScaleRequestList contains a list of AutoScaleRequest.
//
// +kubebuilder:object:root=true
type AutoScaleRequestList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []AutoScaleRequest `json:"items"`
}
