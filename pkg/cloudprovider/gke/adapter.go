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

// Package gke implements cloudprovider.Adapter against the Kubernetes
// Binding subresource and the GCP Compute and Container APIs, the Go
// equivalent of original_source/'s CloudAdapter (deploy_pod, provision_vm,
// deprovision_vm) and autoscaler.py's scale_gke_node_pool. Every outbound
// call is wrapped in the teacher's avast/retry-go backoff policy, since
// these are the one HTAS dependency that crosses a network boundary the
// control loops don't otherwise own.
package gke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	compute "google.golang.org/api/compute/v1"
	container "google.golang.org/api/container/v1"
	"google.golang.org/api/googleapi"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/cloudprovider"
	"github.com/htas-io/htas/pkg/logging"
)

var retryOptions = []retry.Option{
	retry.Delay(1 * time.Second),
	retry.MaxDelay(30 * time.Second),
	retry.Attempts(5),
	retry.DelayType(retry.BackOffDelay),
	retry.LastErrorOnly(true),
	retry.RetryIf(isTransient),
}

// isTransient reports whether err is worth retrying: a 503 from the
// Compute/Container APIs (the service is temporarily unavailable), as
// opposed to a 4xx like NotFound or PermissionDenied that retrying can
// never fix. Everything else (network errors with no googleapi.Error,
// context cancellation) is retried too, matching retry-go's default
// behavior for errors it can't classify.
func isTransient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 503
	}
	return true
}

var _ cloudprovider.Adapter = (*Adapter)(nil)

// Adapter is the production cloudprovider.Adapter, targeting a single GCP
// project/zone and a single GKE cluster.
type Adapter struct {
	Project     string
	Zone        string
	ClusterName string

	Kube      kubernetes.Interface
	Compute   *compute.Service
	Container *container.Service
}

func (a *Adapter) Bind(ctx context.Context, b cloudprovider.Binding) error {
	ns := b.Namespace
	if ns == "" {
		ns = "default"
	}
	binding := &v1.Binding{
		ObjectMeta: metav1.ObjectMeta{Name: b.PodName, Namespace: ns},
		Target: v1.ObjectReference{
			Kind:       "Node",
			APIVersion: "v1",
			Name:       b.NodeName,
		},
	}
	return retry.Do(func() error {
		err := a.Kube.CoreV1().Pods(ns).Bind(ctx, binding, metav1.CreateOptions{})
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return err
	}, retryOptions...)
}

func (a *Adapter) ProvisionVM(ctx context.Context, cfg cloudprovider.VMConfig) (string, error) {
	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("vm-%d", time.Now().Unix())
	}
	machineType := cfg.MachineType
	if machineType == "" {
		machineType = "e2-standard-2"
	}
	sourceImage := cfg.SourceImage
	if sourceImage == "" {
		sourceImage = "projects/debian-cloud/global/images/family/debian-10"
	}
	startupScript := cfg.StartupScript
	if startupScript == "" {
		startupScript = "#!/bin/bash\necho 'join the cluster via kubeadm join'"
	}

	instance := &compute.Instance{
		Name:        name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", a.Zone, machineType),
		Disks: []*compute.AttachedDisk{{
			Boot:       true,
			AutoDelete: true,
			InitializeParams: &compute.AttachedDiskInitializeParams{
				SourceImage: sourceImage,
			},
		}},
		NetworkInterfaces: []*compute.NetworkInterface{{
			Network: "global/networks/default",
			AccessConfigs: []*compute.AccessConfig{{
				Type: "ONE_TO_ONE_NAT",
				Name: "External NAT",
			}},
		}},
		Metadata: &compute.Metadata{
			Items: []*compute.MetadataItems{{
				Key:   "startup-script",
				Value: &startupScript,
			}},
		},
		Labels: cfg.Labels,
	}

	err := retry.Do(func() error {
		op, err := a.Compute.Instances.Insert(a.Project, a.Zone, instance).Context(ctx).Do()
		if err != nil {
			return err
		}
		return a.waitForZoneOperation(ctx, op.Name)
	}, retryOptions...)
	if err != nil {
		return "", fmt.Errorf("provisioning vm %q: %w", name, err)
	}
	return name, nil
}

func (a *Adapter) DeprovisionVM(ctx context.Context, instanceName string) error {
	err := retry.Do(func() error {
		op, err := a.Compute.Instances.Delete(a.Project, a.Zone, instanceName).Context(ctx).Do()
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return a.waitForZoneOperation(ctx, op.Name)
	}, retryOptions...)
	if err != nil {
		return fmt.Errorf("deprovisioning vm %q: %w", instanceName, err)
	}
	return nil
}

func (a *Adapter) ResizeNodePool(ctx context.Context, workloadType string, delta int) error {
	logger := logging.FromContext(ctx)
	poolName, ok := v1alpha1.NodePoolName(workloadType)
	if !ok {
		return fmt.Errorf("%w: %q", cloudprovider.ErrNoNodePoolMapping, workloadType)
	}
	if delta <= 0 {
		return nil
	}

	var pool *container.NodePool
	err := retry.Do(func() error {
		var err error
		pool, err = a.Container.Projects.Zones.Clusters.NodePools.Get(a.Project, a.Zone, a.ClusterName, poolName).Context(ctx).Do()
		return err
	}, retryOptions...)
	if err != nil {
		return fmt.Errorf("fetching node pool %q: %w", poolName, err)
	}

	currentSize := pool.InitialNodeCount
	maxSize := int64(100)
	if pool.Autoscaling != nil {
		if pool.Autoscaling.Enabled && pool.Autoscaling.MaxNodeCount > 0 {
			maxSize = pool.Autoscaling.MaxNodeCount
		}
	}

	target := currentSize + int64(delta)
	if target > maxSize {
		target = maxSize
	}
	if target <= currentSize {
		logger.Infof("no scale-up needed for %s: requested %d, current %d", poolName, delta, currentSize)
		return nil
	}

	logger.Infof("resizing node pool %s from %d to %d", poolName, currentSize, target)
	return retry.Do(func() error {
		op, err := a.Container.Projects.Zones.Clusters.NodePools.SetSize(a.Project, a.Zone, a.ClusterName, poolName, &container.SetNodePoolSizeRequest{
			NodeCount: target,
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		return a.waitForZoneOperation(ctx, op.Name)
	}, retryOptions...)
}

func (a *Adapter) waitForZoneOperation(ctx context.Context, name string) error {
	for {
		op, err := a.Compute.ZoneOperations.Get(a.Project, a.Zone, name).Context(ctx).Do()
		if err != nil {
			return err
		}
		if op.Status == "DONE" {
			if op.Error != nil && len(op.Error.Errors) > 0 {
				return fmt.Errorf("operation %s failed: %s", name, op.Error.Errors[0].Message)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return err != nil && errors.As(err, &apiErr) && apiErr.Code == 404
}
