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

package operator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fakeadapter "github.com/htas-io/htas/pkg/cloudprovider/fake"
	"github.com/htas-io/htas/pkg/operator"
	"github.com/htas-io/htas/pkg/options"
)

func TestBuildAdapterReturnsFakeAdapterForFakeProvider(t *testing.T) {
	op := &operator.Operator{Options: &options.Options{CloudProvider: "fake"}}
	adapter, err := operator.BuildAdapter(context.Background(), op)
	require.NoError(t, err)
	assert.IsType(t, &fakeadapter.Adapter{}, adapter)
}

func TestBuildAdapterRejectsUnknownProvider(t *testing.T) {
	op := &operator.Operator{Options: &options.Options{CloudProvider: "ec2"}}
	_, err := operator.BuildAdapter(context.Background(), op)
	assert.ErrorContains(t, err, "unknown cloud provider")
}
