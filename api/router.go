package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the HTTP API under /api/v1.
func NewRouter(logger *logrus.Entry, tokens TokenParser, ticketHandler *TicketHandler, bookingHandler *BookingHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authenticate := Authenticate(tokens)
	v1 := router.Group("/api/v1")
	ticketHandler.Register(v1.Group("/tickets"), authenticate)
	bookingHandler.Register(v1.Group("/bookings", authenticate))
	bookingHandler.RegisterPayments(v1.Group("/payments", authenticate))
	return router
}
