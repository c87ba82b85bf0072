// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const (
	actorIDKey  contextKey = "actor_id"
	deviceIDKey contextKey = "device_id"
)

// WithActor stores the authenticated actor and originating device in the
// request context.
func WithActor(ctx context.Context, actorID, deviceID string) context.Context {
	ctx = context.WithValue(ctx, actorIDKey, actorID)
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

// ActorID returns the authenticated actor identity, typically used as the
// proposer of a pending change.
func ActorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorIDKey).(string)
	return id, ok
}

// DeviceID returns the originating device identity.
func DeviceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok
}
