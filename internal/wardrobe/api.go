package wardrobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stylecast/stylecast/internal/storage"
	"github.com/stylecast/stylecast/internal/util"
)

// TokenSource resolves the bearer token for API requests. storage.DB
// satisfies it.
type TokenSource interface {
	LoadCredentials() (storage.Credentials, error)
}

// APIClient talks to the wardrobe REST API. All requests carry
// Authorization: Bearer <token> from the token source.
type APIClient struct {
	BaseURL string
	HTTP    *http.Client
	tokens  TokenSource
}

// NewAPIClient creates a client for the given base URL. timeout <= 0 uses a
// 10 second default.
func NewAPIClient(baseURL string, tokens TokenSource, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		BaseURL: util.NormalizeURL(baseURL),
		HTTP:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// newRequest builds an authenticated request. A missing credential row is not
// an error here — the request goes out without a token and the server decides.
func (c *APIClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if creds, err := c.tokens.LoadCredentials(); err == nil && creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	return req, nil
}

// getJSON performs a GET request, drains the response body, and decodes JSON
// into v. Returns an error on transport failure or non-2xx status.
func (c *APIClient) getJSON(ctx context.Context, url string, v any) error {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("GET %s: status %s", url, resp.Status)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// GetWardrobe fetches a wardrobe by id. Used by the validate-before-commit
// check in SelectWardrobe.
func (c *APIClient) GetWardrobe(ctx context.Context, id string) (*Wardrobe, error) {
	var w Wardrobe
	if err := c.getJSON(ctx, c.BaseURL+"/wardrobes/"+id, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWardrobes fetches all wardrobes visible to the current user.
func (c *APIClient) ListWardrobes(ctx context.Context) ([]Wardrobe, error) {
	var out []Wardrobe
	if err := c.getJSON(ctx, c.BaseURL+"/wardrobes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProduct fetches catalog details for a product id.
func (c *APIClient) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	if err := c.getJSON(ctx, c.BaseURL+"/products/"+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AddItem posts a product into a wardrobe and returns the server-assigned
// item id.
func (c *APIClient) AddItem(ctx context.Context, wardrobeID, productID, notes string, tags []string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"productId": productID,
		"notes":     notes,
		"tags":      tags,
	})
	req, err := c.newRequest(ctx, http.MethodPost, c.BaseURL+"/wardrobes/"+wardrobeID+"/items", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("add item: status %s", resp.Status)
	}

	var out struct {
		Data struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("add item: decode response: %w", err)
	}
	if out.Data.Item.ID == "" {
		return "", fmt.Errorf("add item: server response missing item id")
	}
	return out.Data.Item.ID, nil
}

// DeleteItem removes a confirmed item from a wardrobe.
func (c *APIClient) DeleteItem(ctx context.Context, wardrobeID, itemID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.BaseURL+"/wardrobes/"+wardrobeID+"/items/"+itemID, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("delete item: status %s", resp.Status)
	}
	return nil
}

// NotifyParticipants fans a wardrobe change out to the other call
// participants via the call's notification endpoint.
func (c *APIClient) NotifyParticipants(ctx context.Context, callID, action string, item WardrobeItem, wardrobeID string) error {
	body, _ := json.Marshal(map[string]any{
		"action":     action,
		"item":       item,
		"wardrobeId": wardrobeID,
	})
	req, err := c.newRequest(ctx, http.MethodPost, c.BaseURL+"/calls/"+callID+"/wardrobe-update", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notify participants: status %s", resp.Status)
	}
	return nil
}
