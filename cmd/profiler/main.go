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

// Command profiler runs the Resource Profiler: a 20s reconcile loop that
// recomputes NodeProfiles, plus a GET /nodes endpoint served on a
// separate goroutine so a slow reconcile pass never blocks readers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/operator"
	"github.com/htas-io/htas/pkg/profiler"
)

func main() {
	ctx, op := operator.NewOperator("profiler")
	logger := logging.FromContext(ctx)

	snapshot := profiler.NewSnapshot()
	p := &profiler.Profiler{
		Orchestrator: op.Orchestrator,
		Snapshot:     snapshot,
	}

	go serveNodes(ctx, snapshot, op.Options.ProfilerPort)

	logger.Infow("resource profiler started", "profilerPort", op.Options.ProfilerPort)
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		if err := p.Reconcile(ctx); err != nil {
			logger.Errorw("profiler cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveNodes(ctx context.Context, snapshot *profiler.Snapshot, port int) {
	logger := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/nodes", profiler.Handler(snapshot))
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Infow("serving node profiles", "addr", addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Errorw("nodes server exited", "error", err)
	}
}
