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

package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htas-io/htas/pkg/metrics"
)

func TestMeasureObservesElapsedDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_measure_duration_seconds"})

	done := metrics.Measure(h)
	time.Sleep(time.Millisecond)
	done()

	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	assert.EqualValues(t, 1, m.GetHistogram().GetSampleCount())
	assert.Positive(t, m.GetHistogram().GetSampleSum())
}
