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

// Package options loads daemon configuration the way the teacher's
// pkg/operator/injection.WithOptionsOrDie does: flags layered over
// environment-variable defaults. The parsed Options are also carried on
// the base context.Context (ToContext/FromContext); each daemon's main()
// hands the fields its control loop and Cloud Adapter need to them directly.
package options

import (
	"context"
	"flag"
	"os"
	"strconv"
)

const (
	EnvClusterName          = "GKE_CLUSTER_NAME"
	EnvZone                 = "GCP_ZONE"
	EnvUtilizationThreshold = "UTILIZATION_THRESHOLD"
	EnvProjectID            = "GCP_PROJECT"
	EnvCloudProvider        = "HTAS_CLOUD_PROVIDER"
	EnvDisruptionPauseCron  = "DISRUPTION_PAUSE_CRON"
	EnvProfilerURL          = "HTAS_PROFILER_URL"

	DefaultZone                 = "us-central1-a"
	DefaultUtilizationThreshold = 50
	DefaultScalingCycleSeconds  = 300
	DefaultCloudProvider        = "gke"
	DefaultProfilerURL          = "http://htas-profiler:8090/nodes"
)

// Options is the configuration shared by every HTAS daemon, per spec.md
// section 6 ("Environment"), supplemented with the project ID and cloud
// provider selector a real GKE Cloud Adapter needs but original_source/
// left to google.auth.default()'s ambient credential discovery.
type Options struct {
	ClusterName          string
	ProjectID            string
	Zone                 string
	UtilizationThreshold int
	ScalingCycleSeconds  int
	CloudProvider        string
	DisruptionPauseCron  string
	ProfilerURL          string
	ProfilerPort         int
	MetricsPort          int
	HealthProbePort      int
}

// New returns an Options populated with defaults; callers must still call
// MustParse to apply flags and required environment variables.
func New() *Options {
	return &Options{
		Zone:                 envOrDefault(EnvZone, DefaultZone),
		UtilizationThreshold: envIntOrDefault(EnvUtilizationThreshold, DefaultUtilizationThreshold),
		ScalingCycleSeconds:  DefaultScalingCycleSeconds,
		CloudProvider:        envOrDefault(EnvCloudProvider, DefaultCloudProvider),
		ProfilerURL:          envOrDefault(EnvProfilerURL, DefaultProfilerURL),
		ProfilerPort:         8090,
		MetricsPort:          8081,
		HealthProbePort:      8082,
	}
}

// AddFlags registers the flags that can override environment defaults.
func (o *Options) AddFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.ClusterName, "cluster-name", os.Getenv(EnvClusterName), "GKE cluster name ("+EnvClusterName+")")
	fs.StringVar(&o.ProjectID, "gcp-project", os.Getenv(EnvProjectID), "GCP project ID ("+EnvProjectID+")")
	fs.StringVar(&o.Zone, "zone", o.Zone, "GCP zone ("+EnvZone+")")
	fs.IntVar(&o.UtilizationThreshold, "utilization-threshold", o.UtilizationThreshold, "underutilization threshold, percent ("+EnvUtilizationThreshold+")")
	fs.IntVar(&o.ScalingCycleSeconds, "scaling-cycle-seconds", o.ScalingCycleSeconds, "scaling epoch length, seconds")
	fs.StringVar(&o.CloudProvider, "cloud-provider", o.CloudProvider, "cloud adapter to use: gke or fake ("+EnvCloudProvider+")")
	fs.StringVar(&o.DisruptionPauseCron, "disruption-pause-cron", os.Getenv(EnvDisruptionPauseCron), "cron expression during which the Instance Cleaner pauses reclaim ("+EnvDisruptionPauseCron+")")
	fs.StringVar(&o.ProfilerURL, "profiler-url", o.ProfilerURL, "Resource Profiler GET /nodes endpoint ("+EnvProfilerURL+")")
	fs.IntVar(&o.ProfilerPort, "profiler-port", o.ProfilerPort, "port the Resource Profiler serves GET /nodes on")
	fs.IntVar(&o.MetricsPort, "metrics-port", o.MetricsPort, "port to serve /metrics on")
	fs.IntVar(&o.HealthProbePort, "health-probe-port", o.HealthProbePort, "port to serve /healthz on")
}

// MustParse parses os.Args[1:] and validates required fields, panicking
// on a fatal configuration error (no daemon recovers it, so the process
// exits non-zero), per
// spec.md section 6 ("Exit codes": non-zero exit only on fatal
// configuration errors).
func (o *Options) MustParse() *Options {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	o.AddFlags(fs)
	_ = fs.Parse(os.Args[1:])
	if o.ClusterName == "" {
		panic("missing required configuration: " + EnvClusterName + " (or -cluster-name)")
	}
	if o.CloudProvider == "gke" && o.ProjectID == "" {
		panic("missing required configuration: " + EnvProjectID + " (or -gcp-project) for cloud-provider=gke")
	}
	return o
}

type optionsKey struct{}

func ToContext(ctx context.Context, o *Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, o)
}

func FromContext(ctx context.Context) *Options {
	o, _ := ctx.Value(optionsKey{}).(*Options)
	if o == nil {
		return New()
	}
	return o
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
