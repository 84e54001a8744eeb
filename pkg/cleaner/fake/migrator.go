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

// Package fake is an in-memory pkg/cleaner.Migrator for tests that
// exercise the migration choreography without a live container runtime.
package fake

import (
	"context"
	"fmt"

	v1 "k8s.io/api/core/v1"
)

// Migrator records every call and can be made to fail at any one of its
// four steps via the corresponding error field.
type Migrator struct {
	CheckpointErr error
	ExportErr     error
	ImportErr     error
	RestoreErr    error

	Checkpoints []string
	Exports     []string
	Imports     []string
	Restores    []string
}

func New() *Migrator { return &Migrator{} }

func (m *Migrator) Checkpoint(_ context.Context, pod *v1.Pod) (string, error) {
	if m.CheckpointErr != nil {
		return "", m.CheckpointErr
	}
	m.Checkpoints = append(m.Checkpoints, pod.Name)
	return fmt.Sprintf("/tmp/checkpoint-%s", pod.Name), nil
}

func (m *Migrator) Export(_ context.Context, pod *v1.Pod, artifactDir string) (string, error) {
	if m.ExportErr != nil {
		return "", m.ExportErr
	}
	m.Exports = append(m.Exports, pod.Name)
	return artifactDir + ".tar", nil
}

func (m *Migrator) Import(_ context.Context, replica *v1.Pod, _ string) error {
	if m.ImportErr != nil {
		return m.ImportErr
	}
	m.Imports = append(m.Imports, replica.Name)
	return nil
}

func (m *Migrator) Restore(_ context.Context, replica *v1.Pod) error {
	if m.RestoreErr != nil {
		return m.RestoreErr
	}
	m.Restores = append(m.Restores, replica.Name)
	return nil
}
