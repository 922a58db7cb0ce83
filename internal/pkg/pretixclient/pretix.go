package pretixclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/env"
	"github.com/ManuelReschke/MemberFox/internal/pkg/membership"
)

const defaultPretixBaseURL = "https://pretix.eu"

// Webhook actions this service consumes.
const (
	ActionOrderPaid     = "pretix.event.order.paid"
	ActionOrderCanceled = "pretix.event.order.canceled"
)

// Pretix order statuses.
const (
	OrderStatusPending  = "n"
	OrderStatusPaid     = "p"
	OrderStatusExpired  = "e"
	OrderStatusCanceled = "c"
)

// Notification is the payload Pretix posts to the webhook endpoint. It only
// names the order; the order itself has to be fetched via the REST API.
type Notification struct {
	NotificationID int64  `json:"notification_id"`
	Organizer      string `json:"organizer"`
	Event          string `json:"event"`
	Code           string `json:"code"`
	Action         string `json:"action"`
}

// ParseNotification decodes and checks a webhook notification.
func ParseNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, err
	}
	if strings.TrimSpace(n.Organizer) == "" || strings.TrimSpace(n.Event) == "" {
		return nil, errors.New("pretix notification missing organizer or event")
	}
	if strings.TrimSpace(n.Code) == "" {
		return nil, errors.New("pretix notification missing order code")
	}
	if strings.TrimSpace(n.Action) == "" {
		return nil, errors.New("pretix notification missing action")
	}
	return &n, nil
}

// EventID returns the dedup ID for the webhook event store.
func (n *Notification) EventID() string {
	return strconv.FormatInt(n.NotificationID, 10)
}

// Position is one order line with its ticket validity window.
type Position struct {
	ID            int64  `json:"id"`
	AttendeeEmail string `json:"attendee_email"`
	ValidFrom     string `json:"valid_from"`
	ValidUntil    string `json:"valid_until"`
}

// Order is the subset of Pretix's order resource this service reads.
type Order struct {
	Code         string     `json:"code"`
	Status       string     `json:"status"`
	Email        string     `json:"email"`
	Datetime     string     `json:"datetime"`
	LastModified string     `json:"last_modified"`
	Total        string     `json:"total"`
	Positions    []Position `json:"positions"`
}

// Client is a thin authenticated client for the Pretix REST API.
type Client struct {
	BaseURL  string
	APIToken string
	Currency string

	HTTPClient *http.Client
}

// NewClientFromEnv builds the client from PRETIX_* environment variables.
func NewClientFromEnv() *Client {
	return &Client{
		BaseURL:  strings.TrimRight(env.GetEnv("PRETIX_BASE_URL", defaultPretixBaseURL), "/"),
		APIToken: strings.TrimSpace(env.GetEnv("PRETIX_API_TOKEN", "")),
		Currency: strings.ToUpper(strings.TrimSpace(env.GetEnv("PRETIX_CURRENCY", "EUR"))),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchOrder loads one order from the Pretix REST API. Webhook notifications
// carry only the order code, so every delivery is expanded through this call.
func (c *Client) FetchOrder(ctx context.Context, organizer, event, code string) (*Order, error) {
	if strings.TrimSpace(c.APIToken) == "" {
		return nil, errors.New("PRETIX_API_TOKEN is not configured")
	}

	url := fmt.Sprintf("%s/api/v1/organizers/%s/events/%s/orders/%s/", c.BaseURL, organizer, event, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pretix order request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, err
	}
	if strings.TrimSpace(order.Code) == "" {
		return nil, errors.New("pretix order response missing code")
	}
	return &order, nil
}

// PaymentEventFromOrder maps a paid order to the normalized payment event.
// The validity window spans all positions (earliest valid_from to latest
// valid_until); orders without validity-carrying positions are rejected at
// this boundary.
func PaymentEventFromOrder(n *Notification, order *Order, currency string) (*membership.PaymentEvent, error) {
	if order.Status != OrderStatusPaid {
		return nil, fmt.Errorf("pretix order %s is not paid (status %q)", order.Code, order.Status)
	}
	if strings.TrimSpace(order.Email) == "" {
		return nil, fmt.Errorf("pretix order %s has no customer email", order.Code)
	}

	var start, end time.Time
	for _, pos := range order.Positions {
		from, until, err := parseValidity(pos)
		if err != nil {
			return nil, fmt.Errorf("pretix order %s position %d: %w", order.Code, pos.ID, err)
		}
		if from.IsZero() {
			continue
		}
		if start.IsZero() || from.Before(start) {
			start = from
		}
		if end.IsZero() || until.After(end) {
			end = until
		}
	}
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("pretix order %s has no position with a validity window", order.Code)
	}

	amount, err := ParseAmountCents(order.Total)
	if err != nil {
		return nil, fmt.Errorf("pretix order %s total: %w", order.Code, err)
	}

	paymentDate := start
	if t, err := time.Parse(time.RFC3339, order.Datetime); err == nil {
		paymentDate = t.UTC()
	}

	return &membership.PaymentEvent{
		Provider:    models.PaymentProviderPretix,
		CustomerRef: strings.ToLower(strings.TrimSpace(order.Email)),
		AmountCents: amount,
		Currency:    currency,
		PaymentDate: paymentDate,
		PeriodStart: start,
		PeriodEnd:   end,
		Pretix: &membership.PretixOrderRef{
			Organizer: n.Organizer,
			Event:     n.Event,
			OrderCode: order.Code,
		},
	}, nil
}

// CancellationEventFromOrder maps a canceled order to the normalized
// cancellation event. The re-fetched order must actually be canceled or
// expired: a stale notification whose order was paid again in the meantime
// must not cancel the subscription.
func CancellationEventFromOrder(order *Order) (*membership.CancellationEvent, error) {
	if order.Status != OrderStatusCanceled && order.Status != OrderStatusExpired {
		return nil, fmt.Errorf("pretix order %s is not canceled (status %q)", order.Code, order.Status)
	}
	if strings.TrimSpace(order.Email) == "" {
		return nil, fmt.Errorf("pretix order %s has no customer email", order.Code)
	}
	canceledAt := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, order.LastModified); err == nil {
		canceledAt = t.UTC()
	}
	return &membership.CancellationEvent{
		Provider:    models.PaymentProviderPretix,
		CustomerRef: strings.ToLower(strings.TrimSpace(order.Email)),
		CanceledAt:  canceledAt,
	}, nil
}

func parseValidity(pos Position) (time.Time, time.Time, error) {
	if strings.TrimSpace(pos.ValidFrom) == "" && strings.TrimSpace(pos.ValidUntil) == "" {
		return time.Time{}, time.Time{}, nil
	}
	from, err := time.Parse(time.RFC3339, pos.ValidFrom)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid valid_from: %w", err)
	}
	until, err := time.Parse(time.RFC3339, pos.ValidUntil)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid valid_until: %w", err)
	}
	return from.UTC(), until.UTC(), nil
}

// ParseAmountCents converts Pretix's decimal string amounts ("120.00") to
// integer cents without floating point.
func ParseAmountCents(total string) (int64, error) {
	s := strings.TrimSpace(total)
	if s == "" {
		return 0, errors.New("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", total)
	}
	if frac == "" {
		return units * 100, nil
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", total)
	}
	if units < 0 {
		return units*100 - cents, nil
	}
	return units*100 + cents, nil
}
