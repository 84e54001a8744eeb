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

// Package cloudprovider defines the Adapter interface every HTAS daemon
// binds, provisions, deprovisions, and resizes node pools through. It
// plays the role the teacher's pkg/cloudprovider.CloudProvider interface
// plays for Create/Delete/GetInstanceTypes, generalized to the GKE-shaped
// operations original_source/'s cloud_adapter.py and autoscaler.py
// perform directly against the Kubernetes and GCP Compute/Container
// APIs.
package cloudprovider

import (
	"context"
	"fmt"
)

// VMFlavor is a selectable GCE machine type, mirroring original_source/'s
// VM_FLAVORS table.
type VMFlavor struct {
	Name       string
	MilliCPU   int64
	MemoryMiB  int64
	HourlyCost float64
}

// Binding names the pod/node pair the Task Packer has decided to bind.
type Binding struct {
	PodName   string
	Namespace string
	NodeName  string
}

// VMConfig parameterizes ProvisionVM, mirroring original_source/'s
// vm_config dict (name, machineType, sourceImage, startupScript, labels).
type VMConfig struct {
	Name          string
	MachineType   string
	SourceImage   string
	StartupScript string
	Labels        map[string]string
}

// ErrNoNodePoolMapping is returned by ResizeNodePool for a workload type
// with no NODE_POOL_MAPPING entry, matching original_source/'s
// scale_gke_node_pool early return.
var ErrNoNodePoolMapping = fmt.Errorf("no node pool mapping for workload type")

// Adapter is the seam between HTAS's control loops and the orchestrator
// plus cloud backend: binding tasks to nodes, provisioning and
// deprovisioning VMs, and resizing GKE node pools. Implementations (fake,
// gke) wrap every outbound call with the retry policy callers expect;
// callers do not retry themselves.
type Adapter interface {
	// Bind deploys a pod onto a specific node via the orchestrator's
	// binding subresource.
	Bind(ctx context.Context, b Binding) error

	// ProvisionVM provisions a new VM instance and blocks until the
	// create operation completes, returning the instance name.
	ProvisionVM(ctx context.Context, cfg VMConfig) (string, error)

	// DeprovisionVM deletes a VM instance and blocks until the delete
	// operation completes. Deleting an instance that no longer exists
	// is treated as success (idempotent deprovisioning).
	DeprovisionVM(ctx context.Context, instanceName string) error

	// ResizeNodePool requests delta additional nodes for the node pool
	// backing workloadType, clamped to the pool's configured maximum
	// and a no-op when delta <= 0 or the pool is already at or above
	// target size.
	ResizeNodePool(ctx context.Context, workloadType string, delta int) error
}
