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

// Command packer runs the Task Packer: a 20s loop that binds pending
// tasks onto the best-fitting node and requests capacity for the rest.
package main

import (
	"time"

	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/operator"
	"github.com/htas-io/htas/pkg/packer"
)

func main() {
	ctx, op := operator.NewOperator("packer")
	logger := logging.FromContext(ctx)

	adapter, err := operator.BuildAdapter(ctx, op)
	if err != nil {
		logger.Fatalw("building cloud adapter", "error", err)
	}

	p := &packer.Packer{
		Orchestrator:        op.Orchestrator,
		Adapter:             adapter,
		Recorder:            op.EventRecorder,
		ProfilerURL:         op.Options.ProfilerURL,
		ScalingCycleSeconds: int64(op.Options.ScalingCycleSeconds),
	}

	logger.Infow("task packer started", "scalingCycleSeconds", op.Options.ScalingCycleSeconds)
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		if err := p.Run(ctx); err != nil {
			logger.Errorw("packer cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
