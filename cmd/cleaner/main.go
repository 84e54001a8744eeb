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

// Command cleaner runs the Instance Cleaner: a 300s loop that migrates
// batch tasks off underutilized nodes and reclaims them.
package main

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/htas-io/htas/pkg/cleaner"
	"github.com/htas-io/htas/pkg/cleaner/execmigrator"
	fakemigrator "github.com/htas-io/htas/pkg/cleaner/fake"
	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/operator"
)

func main() {
	ctx, op := operator.NewOperator("cleaner")
	logger := logging.FromContext(ctx)

	adapter, err := operator.BuildAdapter(ctx, op)
	if err != nil {
		logger.Fatalw("building cloud adapter", "error", err)
	}

	var pauseSchedule cron.Schedule
	if op.Options.DisruptionPauseCron != "" {
		pauseSchedule, err = cron.ParseStandard(op.Options.DisruptionPauseCron)
		if err != nil {
			logger.Fatalw("parsing disruption pause cron expression", "error", err)
		}
	}

	c := &cleaner.Cleaner{
		Orchestrator:                op.Orchestrator,
		Adapter:                     adapter,
		Recorder:                    op.EventRecorder,
		Migrator:                    migrator(op),
		UtilizationThresholdPercent: op.Options.UtilizationThreshold,
		PauseSchedule:               pauseSchedule,
	}

	logger.Infow("instance cleaner started", "utilizationThreshold", op.Options.UtilizationThreshold)
	ticker := time.NewTicker(300 * time.Second)
	defer ticker.Stop()
	for {
		if err := c.Run(ctx); err != nil {
			logger.Errorw("cleaner cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// migrator selects the checkpoint/restore collaborator for the
// configured cloud provider: "fake" gets the in-memory migrator used in
// development and CI, every other provider gets the production
// exec-over-SPDY migrator against the live cluster.
func migrator(op *operator.Operator) cleaner.Migrator {
	if op.Options.CloudProvider == "fake" {
		return fakemigrator.New()
	}
	return &execmigrator.Migrator{Kube: op.Kube, Config: op.RESTConfig}
}
