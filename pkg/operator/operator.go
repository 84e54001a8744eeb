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

// Package operator is the shared bootstrap every HTAS daemon (Task
// Packer, Autoscaler, Resource Profiler, Instance Cleaner) runs through:
// parse Options, build the orchestrator.Client against a live cluster,
// wire structured logging and an Event recorder, and serve /metrics and
// /healthz. It plays the role the teacher's pkg/operator.Operator plays
// for its controller-runtime manager.Manager, trimmed to what four
// independent polling processes need instead of a reconcile-loop manager
// with webhooks and leader election (see DESIGN.md for what was dropped
// and why).
package operator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/flowcontrol"
	controllerruntime "sigs.k8s.io/controller-runtime"
	crclient "sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/htas-io/htas/pkg/apis/v1alpha1"
	"github.com/htas-io/htas/pkg/events"
	"github.com/htas-io/htas/pkg/logging"
	"github.com/htas-io/htas/pkg/metrics"
	"github.com/htas-io/htas/pkg/options"
	"github.com/htas-io/htas/pkg/orchestrator"
)

const appName = "htas"

// Operator bundles what every daemon's main() needs after bootstrap.
type Operator struct {
	Options       *options.Options
	Orchestrator  orchestrator.Client
	EventRecorder events.Recorder
	RESTConfig    *rest.Config
	Kube          kubernetes.Interface
}

// NewOperator parses Options, builds the orchestrator.Client, starts the
// /metrics and /healthz servers, and returns a base context carrying the
// logger and Options, ready for a daemon's Run loop. component names the
// calling daemon ("packer", "autoscaler", "profiler", "cleaner") for
// logging and the Kubernetes event source.
func NewOperator(component string) (context.Context, *Operator) {
	ctx := context.Background()

	opts := options.New().MustParse()
	logger := logging.NewLogger(component)
	ctx = logging.WithLogger(ctx, logger)
	ctx = options.ToContext(ctx, opts)

	config := controllerruntime.GetConfigOrDie()
	config.RateLimiter = flowcontrol.NewTokenBucketRateLimiter(50, 100)
	config.UserAgent = fmt.Sprintf("%s-%s", appName, component)

	scheme := runtime.NewScheme()
	lo.Must0(clientgoscheme.AddToScheme(scheme))
	lo.Must0(v1alpha1.AddToScheme(scheme))

	c := lo.Must(crclient.New(config, crclient.Options{Scheme: scheme}))
	kube := kubernetes.NewForConfigOrDie(config)

	metrics.MustRegister()
	go serveMetrics(logger, opts.MetricsPort)
	go serveHealthz(logger, opts.HealthProbePort)

	return ctx, &Operator{
		Options:       opts,
		Orchestrator:  orchestrator.New(c, kube),
		EventRecorder: events.NewRecorder(newEventRecorder(kube, scheme, component)),
		RESTConfig:    config,
		Kube:          kube,
	}
}

func newEventRecorder(kube kubernetes.Interface, scheme *runtime.Scheme, component string) record.EventRecorder {
	broadcaster := record.NewBroadcaster()
	broadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{Interface: kube.CoreV1().Events(orchestrator.Namespace)})
	return broadcaster.NewRecorder(scheme, corev1.EventSource{Component: fmt.Sprintf("%s-%s", appName, component)})
}

func serveMetrics(logger *zap.SugaredLogger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	logger.Infow("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec
		logger.Errorw("metrics server exited", "error", err)
	}
}

func serveHealthz(logger *zap.SugaredLogger, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := healthz.Ping(r); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Errorw("healthz server exited", "error", err)
	}
}
