package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/Domenick1991/ticketbari/internal/lifecycle"
	"github.com/Domenick1991/ticketbari/internal/pagination"
	"github.com/Domenick1991/ticketbari/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// PassRenderer draws the downloadable pass of a paid booking.
type PassRenderer interface {
	Render(w io.Writer, b domain.Booking, now time.Time) error
}

type BookingHandler struct {
	service booking.BookingUseCase
	passes  PassRenderer
	clock   clockwork.Clock
}

type createBookingRequest struct {
	TicketID string `json:"ticket_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

type setStatusRequest struct {
	Status domain.BookingStatus `json:"status" binding:"required"`
}

type paymentRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

// bookingResponse is a booking plus the advice computed for it at response
// time.
type bookingResponse struct {
	domain.Booking
	AllowedActions []lifecycle.Action `json:"allowed_actions"`
	Notice         string             `json:"notice,omitempty"`
	Countdown      string             `json:"countdown"`
}

type bookingListResponse struct {
	Bookings []bookingResponse `json:"bookings"`
	Page     pagination.Page   `json:"page"`
}

type cancelResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type paymentResponse struct {
	Booking bookingResponse `json:"booking"`
	Payment *domain.Payment `json:"payment"`
}

func NewBookingHandler(service booking.BookingUseCase, passes PassRenderer, clock clockwork.Clock) *BookingHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BookingHandler{service: service, passes: passes, clock: clock}
}

// Register mounts the booking routes. Every route requires authentication.
func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("", h.list)
	router.GET("/stats", h.stats)
	router.GET("/:id", h.get)
	router.PATCH("/:id/status", RequireRole(domain.RoleVendor, domain.RoleAdmin), h.setStatus)
	router.DELETE("/:id", h.cancel)
	router.POST("/:id/payment", h.pay)
	router.GET("/:id/pass", h.pass)
}

func (h *BookingHandler) RegisterPayments(router *gin.RouterGroup) {
	router.GET("", h.payments)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	actor, _ := actorFrom(c)

	created, err := h.service.CreateBooking(c.Request.Context(), actor, booking.CreateBookingInput{
		TicketID: req.TicketID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.present(*created))
}

func (h *BookingHandler) get(c *gin.Context) {
	actor, _ := actorFrom(c)
	b, err := h.service.GetBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.present(*b))
}

func (h *BookingHandler) list(c *gin.Context) {
	query := booking.ListQuery{BuyerEmail: c.Query("email")}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseBookingStatus(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		query.Status = status
	}
	var err error
	if query.Page, err = intQuery(c, "page"); err != nil {
		badRequest(c, err)
		return
	}
	if query.PerPage, err = intQuery(c, "per_page"); err != nil {
		badRequest(c, err)
		return
	}

	actor, _ := actorFrom(c)
	page, err := h.service.ListBookings(c.Request.Context(), actor, query)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := bookingListResponse{Bookings: make([]bookingResponse, 0, len(page.Bookings)), Page: page.Page}
	for _, b := range page.Bookings {
		resp.Bookings = append(resp.Bookings, h.present(b))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) stats(c *gin.Context) {
	actor, _ := actorFrom(c)
	stats, err := h.service.Stats(c.Request.Context(), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *BookingHandler) setStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	actor, _ := actorFrom(c)

	updated, err := h.service.SetStatus(c.Request.Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.present(*updated))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	actor, _ := actorFrom(c)
	deleted, err := h.service.CancelBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelResponse{ID: deleted.ID, Deleted: true})
}

func (h *BookingHandler) pay(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	actor, _ := actorFrom(c)

	paid, payment, err := h.service.MarkPaid(c.Request.Context(), actor, c.Param("id"), req.PaymentReference)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paymentResponse{Booking: h.present(*paid), Payment: payment})
}

func (h *BookingHandler) pass(c *gin.Context) {
	actor, _ := actorFrom(c)
	b, err := h.service.GetBooking(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.passes.Render(&buf, *b, h.clock.Now()); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ticket-`+b.ID+`.jpeg"`)
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

func (h *BookingHandler) payments(c *gin.Context) {
	actor, _ := actorFrom(c)
	payments, err := h.service.ListPayments(c.Request.Context(), actor, c.Query("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (h *BookingHandler) present(b domain.Booking) bookingResponse {
	now := h.clock.Now()
	eligibility := lifecycle.EligibleAt(b, now)
	return bookingResponse{
		Booking:        b,
		AllowedActions: eligibility.Actions,
		Notice:         eligibility.Notice,
		Countdown:      lifecycle.ComputeRemaining(b.DepartureAt, now).String(),
	}
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
