// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP surface. Everything except the health probe sits
// behind the JWT middleware.
func NewRouter(h *HTTPHandlers, jwtAuth *JWTAuth) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(jwtAuth.Middleware)

		r.Post("/sync/technicians", h.HandleSyncTechnicians)
		r.Post("/sync/clients", h.HandleSyncClients)
		r.Post("/sync/devices", h.HandleSyncDevices)
		r.Post("/sync/orders", h.HandleSyncOrders)

		r.Get("/pending-changes", h.HandleListPendingChanges)
		r.Post("/pending-changes", h.HandleProposeChange)
		r.Post("/pending-changes/{id}/accept", h.HandleAcceptChange)
		r.Post("/pending-changes/{id}/reject", h.HandleRejectChange)

		r.Post("/orders/{number}/status", h.HandleOrderStatus)

		r.Get("/events", h.HandleEvents)
		r.Post("/notify", h.HandleNotify)
	})

	return r
}
