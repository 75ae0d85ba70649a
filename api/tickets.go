package api

import (
	"net/http"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/Domenick1991/ticketbari/internal/service/tickets"
	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	service tickets.TicketUseCase
}

type setTicketStatusRequest struct {
	Status domain.TicketStatus `json:"status" binding:"required"`
}

func NewTicketHandler(service tickets.TicketUseCase) *TicketHandler {
	return &TicketHandler{service: service}
}

// Register mounts the catalog. Reading approved tickets is public; a
// vendor's own listing (?mine=1), creating and moderating go through
// authenticate.
func (h *TicketHandler) Register(router *gin.RouterGroup, authenticate gin.HandlerFunc) {
	router.GET("", whenMine(authenticate), h.list)
	router.GET("/:id", h.get)
	router.POST("", authenticate, RequireRole(domain.RoleVendor, domain.RoleAdmin), h.create)
	router.PATCH("/:id/status", authenticate, RequireRole(domain.RoleAdmin), h.setStatus)
}

func mine(c *gin.Context) bool {
	v := c.Query("mine")
	return v != "" && v != "0" && v != "false"
}

// whenMine runs authenticate only for ?mine requests.
func whenMine(authenticate gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if mine(c) {
			authenticate(c)
			return
		}
		c.Next()
	}
}

func (h *TicketHandler) list(c *gin.Context) {
	var (
		list []domain.Ticket
		err  error
	)
	if mine(c) {
		actor, _ := actorFrom(c)
		list, err = h.service.ListMine(c.Request.Context(), actor)
	} else {
		list, err = h.service.List(c.Request.Context())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *TicketHandler) get(c *gin.Context) {
	ticket, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (h *TicketHandler) create(c *gin.Context) {
	var input tickets.CreateTicketInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	actor, _ := actorFrom(c)

	ticket, err := h.service.Create(c.Request.Context(), actor, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (h *TicketHandler) setStatus(c *gin.Context) {
	var req setTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	actor, _ := actorFrom(c)

	ticket, err := h.service.SetStatus(c.Request.Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}
