// Package tablo is a client for the Tablo table-booking API.
package tablo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/sirupsen/logrus"
)

// SuccessCode is the application-level code of a successful response.
const SuccessCode = 0

// ErrStatus marks a response whose application code is not SuccessCode.
var ErrStatus = errors.New("api returned non-success code")

// ListFilters are the query parameters of getTavoliNewOrder.
type ListFilters struct {
	Dates       string `url:"dateTavolo"`
	Radius      string `url:"raggio"`
	Latitude    string `url:"lat"`
	Longitude   string `url:"lng"`
	Map         string `url:"mappa"`
	Page        string `url:"page"`
	OrderType   string `url:"orderType"`
	ItemPerPage string `url:"itemPerPage"`
	AgeMin      string `url:"ageMin,omitempty"`
	AgeMax      string `url:"ageMax,omitempty"`
}

// DateFilter formats a single day for the Dates filter.
func DateFilter(day time.Time) string {
	return fmt.Sprintf(`["%s"]`, day.Format("2006-01-02"))
}

// Client calls the Tablo API with an auth token.
type Client struct {
	baseURL    *url.URL
	authToken  string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a client. A nil httpClient gets a 30 second timeout.
func NewClient(baseURL, authToken string, httpClient *http.Client, logger *logrus.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    u,
		authToken:  authToken,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ListTables fetches table summaries matching filters.
func (c *Client) ListTables(ctx context.Context, filters ListFilters) (*ListResponse, error) {
	values, err := query.Values(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	var resp ListResponse
	if err := c.get(ctx, "/tavoliService/getTavoliNewOrder", values, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTable fetches the full detail of one table.
func (c *Client) GetTable(ctx context.Context, tableID string) (*TableResponse, error) {
	values := url.Values{}
	values.Set("idTavolo", tableID)
	var resp TableResponse
	if err := c.get(ctx, "/tavoliService/getTavolo", values, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRestaurantUsers fetches the people the API suggests inviting to a
// table at the given restaurant.
func (c *Client) ListRestaurantUsers(ctx context.Context, restaurantID string) (*UsersResponse, error) {
	values := url.Values{}
	values.Set("idRistorante", restaurantID)
	var resp UsersResponse
	if err := c.get(ctx, "/tavoliService/getNewUtentiInvitoRistorante", values, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, values url.Values, out any) error {
	u := *c.baseURL
	u.Path = u.Path + path
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-AUTH-TOKEN", c.authToken)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return fmt.Errorf("API status %d for %s", res.StatusCode, path)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	c.logger.Debugf("GET %s -> %d", path, res.StatusCode)
	return nil
}
