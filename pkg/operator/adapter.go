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

package operator

import (
	"context"
	"fmt"

	compute "google.golang.org/api/compute/v1"
	container "google.golang.org/api/container/v1"

	"github.com/htas-io/htas/pkg/cloudprovider"
	fakeadapter "github.com/htas-io/htas/pkg/cloudprovider/fake"
	"github.com/htas-io/htas/pkg/cloudprovider/gke"
)

// BuildAdapter constructs the cloudprovider.Adapter named by
// o.Options.CloudProvider: "gke" builds the production adapter against
// Google Application Default Credentials (the Go equivalent of
// original_source/'s google.auth.default()), "fake" builds the in-memory
// adapter used in development and in CI without cloud credentials.
func BuildAdapter(ctx context.Context, o *Operator) (cloudprovider.Adapter, error) {
	switch o.Options.CloudProvider {
	case "fake":
		return fakeadapter.NewAdapter(), nil
	case "gke", "":
		computeSvc, err := compute.NewService(ctx)
		if err != nil {
			return nil, fmt.Errorf("building compute client: %w", err)
		}
		containerSvc, err := container.NewService(ctx)
		if err != nil {
			return nil, fmt.Errorf("building container client: %w", err)
		}
		return &gke.Adapter{
			Project:     o.Options.ProjectID,
			Zone:        o.Options.Zone,
			ClusterName: o.Options.ClusterName,
			Kube:        o.Kube,
			Compute:     computeSvc,
			Container:   containerSvc,
		}, nil
	default:
		return nil, fmt.Errorf("unknown cloud provider %q", o.Options.CloudProvider)
	}
}
