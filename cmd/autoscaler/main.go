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

// Command autoscaler runs the Autoscaler: a 30s loop that consumes
// AutoScaleRequests and resizes node pools to absorb them.
package main

import (
	"time"

	"github.com/htas-io/htas/pkg/autoscaler"
	"github.com/htas-io/htas/pkg/cloudprovider/fake"
	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/operator"
)

func main() {
	ctx, op := operator.NewOperator("autoscaler")
	logger := logging.FromContext(ctx)

	adapter, err := operator.BuildAdapter(ctx, op)
	if err != nil {
		logger.Fatalw("building cloud adapter", "error", err)
	}

	flavors := fake.DefaultFlavors()
	if err := autoscaler.ValidateFlavors(flavors); err != nil {
		logger.Fatalw("invalid flavor catalog", "error", err)
	}

	a := &autoscaler.Autoscaler{
		Orchestrator:        op.Orchestrator,
		Adapter:             adapter,
		Recorder:            op.EventRecorder,
		Flavors:             flavors,
		ScalingCycleSeconds: int64(op.Options.ScalingCycleSeconds),
	}

	logger.Infow("autoscaler started", "scalingCycleSeconds", op.Options.ScalingCycleSeconds)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		if err := a.Run(ctx); err != nil {
			logger.Errorw("autoscaler cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
