package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smec-portal/internal/auth"
	"smec-portal/internal/logger"
	"smec-portal/internal/models"

	"github.com/google/uuid"
)

const (
	DefaultLoginMessage      = "Something went wrong. Please try again."
	DefaultAdminLoginMessage = "Invalid credentials or unauthorized access."
	DefaultSignupMessage     = "Failed to create account."
	DefaultPurchaseMessage   = "Registration Failed"
	DefaultFetchMessage      = "Failed to fetch data."
)

// RemoteError is a failed exchange with the remote API. Status is zero when
// no response was received.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote request failed: %s", e.Message)
	}
	return fmt.Sprintf("remote request failed (%d): %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	return target == models.ErrRemoteFailure
}

// IsUnauthorized reports whether err is a 401 from the remote API.
func IsUnauthorized(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Status == http.StatusUnauthorized
}

// Message returns the server message carried by err, or fallback.
func Message(err error, fallback string) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return fallback
}

// Client talks to the festival backend. Purchases go to PurchaseURL.
type Client struct {
	BaseURL     string
	PurchaseURL string
	HTTP        *http.Client
	Logger      *logger.Logger
}

func NewClient(baseURL, purchaseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if purchaseURL == "" {
		purchaseURL = baseURL
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		PurchaseURL: strings.TrimRight(purchaseURL, "/"),
		HTTP:        &http.Client{Timeout: timeout},
		Logger:      log,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Token   string          `json:"token,omitempty"`
	User    *models.User    `json:"user,omitempty"`
	Events  []models.Event  `json:"events,omitempty"`
	Tickets []models.Ticket `json:"tickets,omitempty"`
	Ticket  json.RawMessage `json:"ticket,omitempty"`
}

func (c *Client) Login(ctx context.Context, creds models.Credentials) (*models.AuthResult, error) {
	return c.authenticate(ctx, "/api/user/login", creds, DefaultLoginMessage)
}

func (c *Client) AdminLogin(ctx context.Context, creds models.Credentials) (*models.AuthResult, error) {
	return c.authenticate(ctx, "/api/user/admin-login", creds, DefaultAdminLoginMessage)
}

func (c *Client) authenticate(ctx context.Context, path string, creds models.Credentials, fallback string) (*models.AuthResult, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, c.BaseURL+path, "", creds, nil, fallback, &env); err != nil {
		return nil, err
	}
	if env.Token == "" || env.User == nil {
		return nil, &RemoteError{Status: http.StatusOK, Message: fallback}
	}
	return &models.AuthResult{Token: env.Token, User: *env.User}, nil
}

// Signup registers a buyer account. The role is always forced to buyer.
func (c *Client) Signup(ctx context.Context, req models.SignupRequest) error {
	req.Role = models.RoleBuyer
	var env envelope
	return c.do(ctx, http.MethodPost, c.BaseURL+"/api/user/sign-up", "", req, nil, DefaultSignupMessage, &env)
}

func (c *Client) Events(ctx context.Context) ([]models.Event, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, c.BaseURL+"/api/events/all", "", nil, nil, DefaultFetchMessage, &env); err != nil {
		return nil, err
	}
	return env.Events, nil
}

// BuyTicket issues exactly one purchase request. The idempotency key lets the
// backend drop duplicates of the same attempt.
func (c *Client) BuyTicket(ctx context.Context, token string, req models.PurchaseRequest) (*models.Ticket, error) {
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	var env envelope
	if err := c.do(ctx, http.MethodPost, c.PurchaseURL+"/api/events/buy-ticket", token, req, headers, DefaultPurchaseMessage, &env); err != nil {
		return nil, err
	}
	return c.purchasedTicket(env.Ticket), nil
}

// purchasedTicket decodes the ticket of a successful purchase on a best-effort
// basis. The slot is sold once the server says so; an unexpected body shape
// (an unpopulated event id, a missing ticket) only loses detail.
func (c *Client) purchasedTicket(raw json.RawMessage) *models.Ticket {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var ticket models.Ticket
	if err := json.Unmarshal(raw, &ticket); err == nil {
		return &ticket
	}

	var loose struct {
		ID           string              `json:"_id"`
		SerialNumber string              `json:"serialNumber"`
		PricePaid    float64             `json:"pricePaid"`
		TeamMembers  []models.TeamMember `json:"teamMembers"`
		Event        json.RawMessage     `json:"event"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		c.Logger.Warn("API", fmt.Sprintf("Purchase succeeded but the ticket could not be read: %v", err))
		return nil
	}
	ticket = models.Ticket{
		ID:           loose.ID,
		SerialNumber: loose.SerialNumber,
		PricePaid:    loose.PricePaid,
		TeamMembers:  loose.TeamMembers,
	}
	var event models.Event
	if err := json.Unmarshal(loose.Event, &event); err == nil {
		ticket.Event = &event
	}
	return &ticket
}

func (c *Client) MyTickets(ctx context.Context, token string) ([]models.Ticket, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, c.BaseURL+"/api/events/my-tickets", token, nil, nil, DefaultFetchMessage, &env); err != nil {
		return nil, err
	}
	return env.Tickets, nil
}

func (c *Client) do(ctx context.Context, method, url, token string, body any, headers map[string]string, fallback string, out *envelope) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", auth.BearerHeader(token))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Logger.Error("API", fmt.Sprintf("%s %s failed: %v", method, url, err))
		return &RemoteError{Message: fallback, Err: err}
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.Logger.Error("API", fmt.Sprintf("Failed to close response body: %v", err))
		}
	}(resp.Body)

	c.Logger.LogAPI(method, req.URL.Path, resp.Status, time.Since(start).String())

	decodeErr := json.NewDecoder(resp.Body).Decode(out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Message
		if decodeErr != nil || msg == "" {
			msg = fallback
		}
		return &RemoteError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return &RemoteError{Status: resp.StatusCode, Message: fallback, Err: fmt.Errorf("failed to decode response: %w", decodeErr)}
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = fallback
		}
		return &RemoteError{Status: resp.StatusCode, Message: msg}
	}
	return nil
}
