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

// Package logging carries a structured logr.Logger, backed by zap, on a
// context.Context — the same seam the teacher repo uses for settings, so
// components depend on logr.Logger rather than on zap directly.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

type contextKey struct{}

var ctxKey = contextKey{}

// NewZap builds a production zap-backed logr.Logger. Set dev to true for
// human-readable console output during local development.
func NewZap(dev bool) (logr.Logger, error) {
	var zl *zap.Logger
	var err error
	if dev {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// IntoContext attaches a logger to ctx.
func IntoContext(ctx context.Context, log logr.Logger) context.Context {
	return context.WithValue(ctx, ctxKey, log)
}

// FromContext returns the logger attached to ctx, or a no-op logger if
// none was attached — callers should never crash for lack of a logger.
func FromContext(ctx context.Context) logr.Logger {
	if v, ok := ctx.Value(ctxKey).(logr.Logger); ok {
		return v
	}
	return logr.Discard()
}
