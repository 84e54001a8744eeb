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

// Package logging carries a structured logger on a context.Context, the
// way the teacher's knative.dev/pkg/logging package does for
// logging.FromContext(ctx).Infof(...). HTAS's four daemons have no use for
// the rest of that package (webhooks, shared-main, config-map watching), so
// this is a small, direct replacement backed by go.uber.org/zap, keeping
// the call-site idiom identical to the teacher's controllers.
package logging

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

// NewLogger builds the process-wide zap.SugaredLogger for a component.
func NewLogger(component string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a usable logger rather than failing daemon startup
		// over a logging misconfiguration.
		logger = zap.NewExample()
	}
	return logger.Sugar().Named(component)
}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger carried on the context, falling back to
// a no-op-safe example logger when none was set (e.g. in unit tests that
// don't wire one up).
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return zap.NewExample().Sugar()
}
