// Package rest maps collection and element HTTP semantics onto backend
// model operations. Every route except login runs under the session
// middleware and the transactional wrapper.
package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/backend"
	"github.com/modelgate/modelgate/internal/txn"
)

// Register installs the tenant-prefixed resource routes. Extra middleware
// (request id, rate limiting) applies to the whole tenant group.
func Register(r gin.IRouter, b backend.Backend, w *txn.Wrapper, mw ...gin.HandlerFunc) {
	tenant := r.Group("/:tenant", mw...)
	tenant.POST("/login", Login(b))

	model := tenant.Group("/model")
	model.Use(auth.SessionRequired(b))

	collection := w.Handle(Collection(b))
	model.GET("/:name", collection)
	model.POST("/:name", collection)
	model.DELETE("/:name", collection)

	element := w.Handle(Element(b))
	model.GET("/:name/:id", element)
	model.PUT("/:name/:id", element)
	model.DELETE("/:name/:id", element)
}
