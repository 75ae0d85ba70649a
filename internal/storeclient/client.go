// Package storeclient talks to the booking API over HTTP. It implements the
// lifecycle Store and Catalog, so a Manager can drive remote bookings.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
	"github.com/Domenick1991/ticketbari/internal/lifecycle"
)

// RemoteError is an error answered by the API. It unwraps to the matching
// domain sentinel when the code is known.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	cause   error
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("booking api: %d %s", e.Status, e.Code)
}

func (e *RemoteError) Unwrap() error {
	return e.cause
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type bookingEnvelope struct {
	domain.Booking
	AllowedActions []lifecycle.Action `json:"allowed_actions"`
	Notice         string             `json:"notice"`
	Countdown      string             `json:"countdown"`
}

func (c *Client) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := c.do(ctx, http.MethodGet, "/api/v1/tickets/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	var list []domain.Ticket
	if err := c.do(ctx, http.MethodGet, "/api/v1/tickets", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListMyTickets returns every ticket the caller listed, including those
// still awaiting moderation.
func (c *Client) ListMyTickets(ctx context.Context) ([]domain.Ticket, error) {
	var list []domain.Ticket
	if err := c.do(ctx, http.MethodGet, "/api/v1/tickets?mine=1", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) SetTicketStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	body := map[string]any{"status": status}
	var t domain.Ticket
	if err := c.do(ctx, http.MethodPatch, "/api/v1/tickets/"+url.PathEscape(id)+"/status", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateBooking asks the API to book draft. The server re-prices the request
// from its own catalog; only the ticket and quantity are sent.
func (c *Client) CreateBooking(ctx context.Context, draft domain.BookingDraft) (*domain.Booking, error) {
	body := map[string]any{"ticket_id": draft.TicketID, "quantity": draft.Quantity}
	var env bookingEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/v1/bookings", body, &env); err != nil {
		return nil, err
	}
	return &env.Booking, nil
}

func (c *Client) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	var env bookingEnvelope
	if err := c.do(ctx, http.MethodGet, bookingPath(id), nil, &env); err != nil {
		return nil, err
	}
	return &env.Booking, nil
}

func (c *Client) SetStatus(ctx context.Context, id string, target domain.BookingStatus) (*domain.Booking, error) {
	body := map[string]any{"status": target}
	var env bookingEnvelope
	if err := c.do(ctx, http.MethodPatch, bookingPath(id)+"/status", body, &env); err != nil {
		return nil, err
	}
	return &env.Booking, nil
}

func (c *Client) CancelBooking(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, bookingPath(id), nil, nil)
}

func (c *Client) MarkPaid(ctx context.Context, id, paymentReference string) (*domain.Booking, error) {
	body := map[string]any{"payment_reference": paymentReference}
	var resp struct {
		Booking bookingEnvelope `json:"booking"`
	}
	if err := c.do(ctx, http.MethodPost, bookingPath(id)+"/payment", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Booking.Booking, nil
}

// DownloadPass copies the JPEG pass of a paid booking to w.
func (c *Client) DownloadPass(ctx context.Context, id string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, bookingPath(id)+"/pass", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnreachable, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", domain.ErrUnreachable, method, path, err)
	}
	return nil
}

// send performs the request and returns the response only for 2xx answers.
// Failures to get an answer are ErrUnreachable: the caller cannot know
// whether a mutation was applied.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrUnreachable, method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)

	remote := &RemoteError{Status: resp.StatusCode, Code: payload.Code, Message: payload.Error}
	remote.cause = domain.ErrorForCode(payload.Code)
	if remote.cause == nil && resp.StatusCode >= http.StatusInternalServerError {
		// The server failed in an unknown way; a mutation may or may not
		// have been applied.
		remote.cause = domain.ErrUnreachable
	}
	if remote.cause == nil && resp.StatusCode == http.StatusUnauthorized {
		remote.cause = domain.ErrForbidden
	}
	return remote
}

func bookingPath(id string) string {
	return "/api/v1/bookings/" + url.PathEscape(id)
}

// IsRemote reports whether err was answered by the API rather than produced
// locally.
func IsRemote(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}

var (
	_ lifecycle.Store   = (*Client)(nil)
	_ lifecycle.Catalog = (*Client)(nil)
)
