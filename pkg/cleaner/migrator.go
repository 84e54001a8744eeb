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

package cleaner

import (
	"context"

	v1 "k8s.io/api/core/v1"
)

// Migrator performs the checkpoint/restore half of the seven-step
// migration protocol in spec.md section 4.E. Steps 3 (replica creation)
// and 4 (readiness wait) are orchestrator.Client.CreateReplicaTask and
// WaitTaskRunning; step 7 (deleting the original) is
// orchestrator.Client.EvictTask. Grounded on
// original_source/instance_cleaner.py's migrate_container, which shells
// out to kubectl exec/cp around criu dump/restore; HTAS keeps the same
// seven-step shape but as an explicit collaborator rather than inline
// subprocess calls, so tests can substitute pkg/cleaner/fake.Migrator.
type Migrator interface {
	// Checkpoint captures pod's single container's process tree
	// (memory and file descriptors) into an artifact directory on the
	// source node, leaving the container running.
	Checkpoint(ctx context.Context, pod *v1.Pod) (artifactDir string, err error)
	// Export copies the checkpoint artifacts off the source task to
	// local storage reachable by the Instance Cleaner process.
	Export(ctx context.Context, pod *v1.Pod, artifactDir string) (localPath string, err error)
	// Import copies the previously exported checkpoint into the ready
	// replica on the target node.
	Import(ctx context.Context, replica *v1.Pod, localPath string) error
	// Restore resumes the checkpointed process tree inside replica.
	Restore(ctx context.Context, replica *v1.Pod) error
}
