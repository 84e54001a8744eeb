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

// Package execmigrator is the production pkg/cleaner.Migrator: it
// replaces original_source/instance_cleaner.py's `kubectl exec`/`kubectl cp`
// subprocess calls around criu with client-go's remotecommand executor,
// the same SPDY-over-exec transport kubectl itself uses, reached through
// the teacher's existing k8s.io/client-go dependency rather than shelling
// out to a kubectl binary.
package execmigrator

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	v1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
)

// Migrator execs criu dump/restore inside containers and streams
// checkpoint artifacts through tar-over-exec, the same approach kubectl cp
// uses internally.
type Migrator struct {
	Kube   kubernetes.Interface
	Config *rest.Config

	// LocalDir is where exported checkpoint archives are staged between
	// Export and Import. Defaults to os.TempDir() when empty.
	LocalDir string
}

func (m *Migrator) localDir() string {
	if m.LocalDir != "" {
		return m.LocalDir
	}
	return os.TempDir()
}

func containerName(pod *v1.Pod) string {
	if len(pod.Spec.Containers) == 0 {
		return ""
	}
	return pod.Spec.Containers[0].Name
}

func (m *Migrator) exec(ctx context.Context, pod *v1.Pod, container string, command []string, stdin *bytes.Buffer) (stdout, stderr bytes.Buffer, err error) {
	req := m.Kube.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod.Name).
		Namespace(pod.Namespace).
		SubResource("exec")
	req.VersionedParams(&v1.PodExecOptions{
		Container: container,
		Command:   command,
		Stdin:     stdin != nil,
		Stdout:    true,
		Stderr:    true,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(m.Config, "POST", req.URL())
	if err != nil {
		return stdout, stderr, fmt.Errorf("building executor for %s: %w", pod.Name, err)
	}

	streamOpts := remotecommand.StreamOptions{Stdout: &stdout, Stderr: &stderr}
	if stdin != nil {
		streamOpts.Stdin = stdin
	}
	if err := executor.StreamWithContext(ctx, streamOpts); err != nil {
		return stdout, stderr, fmt.Errorf("exec %v in %s/%s: %w: %s", command, pod.Namespace, pod.Name, err, stderr.String())
	}
	return stdout, stderr, nil
}

// Checkpoint captures the container's process tree via criu dump into a
// per-migration directory, leaving the container running (--leave-running).
func (m *Migrator) Checkpoint(ctx context.Context, pod *v1.Pod) (string, error) {
	artifactDir := fmt.Sprintf("/tmp/checkpoint-%s", uuid.NewString())
	container := containerName(pod)
	cmd := []string{"sh", "-c", fmt.Sprintf(
		"mkdir -p %s && criu dump --tree $(pgrep -f %s) --images-dir %s --shell-job --leave-running",
		artifactDir, container, artifactDir,
	)}
	if _, _, err := m.exec(ctx, pod, container, cmd, nil); err != nil {
		return "", fmt.Errorf("checkpointing %s: %w", pod.Name, err)
	}
	return artifactDir, nil
}

// Export streams artifactDir out of the source container as a tar archive
// and writes it to a local file, the same tar-over-exec transport kubectl
// cp uses.
func (m *Migrator) Export(ctx context.Context, pod *v1.Pod, artifactDir string) (string, error) {
	container := containerName(pod)
	stdout, _, err := m.exec(ctx, pod, container, []string{"tar", "cf", "-", "-C", artifactDir, "."}, nil)
	if err != nil {
		return "", fmt.Errorf("exporting checkpoint from %s: %w", pod.Name, err)
	}
	localPath := fmt.Sprintf("%s/htas-checkpoint-%s.tar", m.localDir(), uuid.NewString())
	if err := os.WriteFile(localPath, stdout.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("staging checkpoint archive for %s: %w", pod.Name, err)
	}
	return localPath, nil
}

// Import streams the staged checkpoint archive into the replica's
// container at a matching artifact directory.
func (m *Migrator) Import(ctx context.Context, replica *v1.Pod, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading staged checkpoint archive %s: %w", localPath, err)
	}
	container := containerName(replica)
	cmd := []string{"sh", "-c", "mkdir -p /tmp/checkpoint && tar xf - -C /tmp/checkpoint"}
	if _, _, err := m.exec(ctx, replica, container, cmd, bytes.NewBuffer(data)); err != nil {
		return fmt.Errorf("importing checkpoint into %s: %w", replica.Name, err)
	}
	return nil
}

// Restore resumes the checkpointed process tree inside the replica via
// criu restore.
func (m *Migrator) Restore(ctx context.Context, replica *v1.Pod) error {
	container := containerName(replica)
	cmd := []string{"criu", "restore", "--images-dir", "/tmp/checkpoint", "--shell-job"}
	if _, _, err := m.exec(ctx, replica, container, cmd, nil); err != nil {
		return fmt.Errorf("restoring checkpoint in %s: %w", replica.Name, err)
	}
	return nil
}
