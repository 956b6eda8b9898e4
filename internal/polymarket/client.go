package polymarket

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"cascade-engine/internal/models"
)

const (
	PolymarketGammaURL = "https://gamma-api.polymarket.com"
)

// ErrEventNotFound is returned when the source does not know an event.
var ErrEventNotFound = errors.New("polymarket event not found")

type PolymarketClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secret     string
	passphrase string
	retry      *RetryPolicy
	breaker    *gobreaker.CircuitBreaker
}

type PolymarketMarket struct {
	ID                  string `json:"id"`
	Question            string `json:"question"`
	Slug                string `json:"slug"`
	Outcomes            string `json:"outcomes"`      // JSON string like "[\"Yes\",\"No\"]"
	OutcomePrices       string `json:"outcomePrices"` // JSON string like "[\"0.65\",\"0.35\"]"
	Volume              string `json:"volume"`
	Active              bool   `json:"active"`
	Closed              bool   `json:"closed"`
	UMAResolutionStatus string `json:"umaResolutionStatus"`
}

// ParseOutcomes parses the outcomes JSON string into a slice
func (m *PolymarketMarket) ParseOutcomes() []string {
	var outcomes []string
	if m.Outcomes != "" {
		json.Unmarshal([]byte(m.Outcomes), &outcomes)
	}
	return outcomes
}

// ParseOutcomePrices maps each outcome name to its price.
func (m *PolymarketMarket) ParseOutcomePrices() map[string]float64 {
	outcomes := m.ParseOutcomes()
	var raw []string
	if m.OutcomePrices != "" {
		json.Unmarshal([]byte(m.OutcomePrices), &raw)
	}
	prices := make(map[string]float64, len(outcomes))
	for i, name := range outcomes {
		if i >= len(raw) {
			break
		}
		p, err := strconv.ParseFloat(raw[i], 64)
		if err != nil {
			continue
		}
		prices[name] = p
	}
	return prices
}

// PolymarketEvent is a Gamma API event with its markets.
type PolymarketEvent struct {
	ID        string             `json:"id"`
	Slug      string             `json:"slug"`
	Title     string             `json:"title"`
	Volume    decimal.Decimal    `json:"volume"`
	Liquidity decimal.Decimal    `json:"liquidity"`
	Active    bool               `json:"active"`
	Closed    bool               `json:"closed"`
	Markets   []PolymarketMarket `json:"markets"`
}

// ToModel converts the event into the stored representation. Domain is left
// empty for the classifier.
func (e *PolymarketEvent) ToModel() models.Event {
	return models.Event{
		ID:          e.ID,
		Slug:        e.Slug,
		Title:       e.Title,
		Volume:      e.Volume,
		Liquidity:   e.Liquidity,
		MarketCount: len(e.Markets),
		Closed:      e.Closed,
		FetchedAt:   time.Now(),
	}
}

// State reduces the event to what settlement needs. The event counts as
// closed when its own flag says so or every one of its markets has closed.
// Outcome data comes from the first market; cascades are built from binary
// events.
func (e *PolymarketEvent) State() models.MarketState {
	state := models.MarketState{EventID: e.ID, Slug: e.Slug, Closed: e.Closed || e.allMarketsClosed()}
	if len(e.Markets) == 0 {
		return state
	}
	m := e.Markets[0]
	state.OutcomePrices = m.ParseOutcomePrices()
	if state.Closed && strings.EqualFold(m.UMAResolutionStatus, "resolved") {
		for name, price := range state.OutcomePrices {
			if price >= 0.99 {
				state.ResolvedOutcome = strings.ToLower(name)
				break
			}
		}
	}
	return state
}

func (e *PolymarketEvent) allMarketsClosed() bool {
	if len(e.Markets) == 0 {
		return false
	}
	for _, m := range e.Markets {
		if !m.Closed {
			return false
		}
	}
	return true
}

func NewPolymarketClient(apiKey, secret, passphrase string) *PolymarketClient {
	return &PolymarketClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:    PolymarketGammaURL,
		apiKey:     apiKey,
		secret:     secret,
		passphrase: passphrase,
		retry:      DefaultRetryPolicy(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "polymarket-gamma",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrEventNotFound) || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// SetBaseURL points the client at another Gamma deployment.
func (c *PolymarketClient) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// SetRetryPolicy replaces the retry policy used for every request.
func (c *PolymarketClient) SetRetryPolicy(p *RetryPolicy) {
	c.retry = p
}

// BreakerState reports the circuit breaker state.
func (c *PolymarketClient) BreakerState() string {
	return c.breaker.State().String()
}

// signRequest creates HMAC signature for authenticated requests
func (c *PolymarketClient) signRequest(timestamp, method, path, body string) string {
	message := timestamp + method + path + body
	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// addAuthHeaders adds authentication headers when credentials are configured.
// The public Gamma endpoints work without them.
func (c *PolymarketClient) addAuthHeaders(req *http.Request, method, path, body string) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey == "" {
		return
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := c.signRequest(timestamp, method, path, body)

	req.Header.Set("POLY-API-KEY", c.apiKey)
	req.Header.Set("POLY-SIGNATURE", signature)
	req.Header.Set("POLY-TIMESTAMP", timestamp)
	req.Header.Set("POLY-PASSPHRASE", c.passphrase)
}

// ListEvents fetches one page of open events ordered by volume.
func (c *PolymarketClient) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("order", "volume")
	q.Set("ascending", "false")

	var page []PolymarketEvent
	if err := c.get(ctx, "/events?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]models.Event, 0, len(page))
	for i := range page {
		events = append(events, page[i].ToModel())
	}
	return events, nil
}

// GetEvent fetches a single event with its markets.
func (c *PolymarketClient) GetEvent(ctx context.Context, eventID string) (*PolymarketEvent, error) {
	var event PolymarketEvent
	if err := c.get(ctx, "/events/"+url.PathEscape(eventID), &event); err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", eventID, err)
	}
	return &event, nil
}

// GetEventState fetches the current closed flag and outcome data for an event.
func (c *PolymarketClient) GetEventState(ctx context.Context, eventID string) (*models.MarketState, error) {
	event, err := c.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	state := event.State()
	return &state, nil
}

// get runs one GET through the circuit breaker and the retry policy.
func (c *PolymarketClient) get(ctx context.Context, path string, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.retry.Do(ctx, func(ctx context.Context) error {
			return c.doGet(ctx, path, out)
		})
	})
	return err
}

func (c *PolymarketClient) doGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	c.addAuthHeaders(req, http.MethodGet, path, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Permanent(ctx.Err())
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Permanent(ErrEventNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("polymarket API error: %d - %s", resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Permanent(fmt.Errorf("polymarket API error: %d - %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
