package gradebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Client is an AGSClient authenticated with OAuth2 client credentials.
type Client struct {
	http *http.Client
}

type ClientConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// DefaultScopes are the AGS scopes the syncer needs.
var DefaultScopes = []string{
	"https://purl.imsglobal.org/spec/lti-ags/scope/lineitem",
	"https://purl.imsglobal.org/spec/lti-ags/scope/score",
}

func NewClient(ctx context.Context, cfg ClientConfig) *Client {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       scopes,
	}
	h := cc.Client(ctx)
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{http: h}
}

type wireLineItem struct {
	ID           string  `json:"id"`
	Label        string  `json:"label"`
	ScoreMaximum float64 `json:"scoreMaximum"`
	ResourceID   string  `json:"resourceId"`
}

func (w wireLineItem) lineItem() LineItem {
	return LineItem{ID: w.ID, Label: w.Label, ScoreMaximum: w.ScoreMaximum, ResourceID: w.ResourceID}
}

func (c *Client) ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]LineItem, error) {
	u, err := url.Parse(lineItemsURL)
	if err != nil {
		return nil, err
	}
	p := u.Query()
	for k, v := range q {
		p.Set(k, v)
	}
	u.RawQuery = p.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.ims.lis.v2.lineitemcontainer+json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("list line items: %s", res.Status)
	}
	var items []wireLineItem
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		return nil, err
	}
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.lineItem())
	}
	return out, nil
}

func (c *Client) CreateLineItem(ctx context.Context, lineItemsURL string, cr CreateLineItemReq) (LineItem, error) {
	body, _ := json.Marshal(map[string]any{
		"label": cr.Label, "scoreMaximum": cr.ScoreMaximum, "resourceId": cr.ResourceID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lineItemsURL, bytes.NewReader(body))
	if err != nil {
		return LineItem{}, err
	}
	req.Header.Set("Content-Type", "application/vnd.ims.lis.v2.lineitem+json")
	req.Header.Set("Accept", "application/vnd.ims.lis.v2.lineitem+json")
	res, err := c.http.Do(req)
	if err != nil {
		return LineItem{}, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return LineItem{}, fmt.Errorf("create line item: %s", res.Status)
	}
	var it wireLineItem
	if err := json.NewDecoder(res.Body).Decode(&it); err != nil {
		return LineItem{}, err
	}
	return it.lineItem(), nil
}

// PostScore posts to {lineItemURL}/scores.
func (c *Client) PostScore(ctx context.Context, lineItemURL string, s Score) error {
	body, _ := json.Marshal(map[string]any{
		"userId": s.UserID, "scoreGiven": s.ScoreGiven, "scoreMaximum": s.ScoreMaximum,
		"activityProgress": s.ActivityProgress, "gradingProgress": s.GradingProgress,
		"comment":   s.Comment,
		"timestamp": s.Timestamp.UTC().Format(time.RFC3339),
	})
	u, err := url.Parse(lineItemURL)
	if err != nil {
		return err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/scores"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/vnd.ims.lis.v1.score+json")
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("post score: %s", res.Status)
	}
	return nil
}
