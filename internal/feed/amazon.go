// Package feed implements Phase 2 of a catalog run: batch submission of
// changed products to the marketplace and asynchronous polling of the
// submission outcome.
package feed

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Feed processing states reported by the marketplace. Done, Cancelled
// and Fatal are terminal; everything else means keep polling.
const (
	FeedStatusDone       = "DONE"
	FeedStatusCancelled  = "CANCELLED"
	FeedStatusFatal      = "FATAL"
	FeedStatusProcessing = "IN_PROGRESS"
	FeedStatusQueued     = "IN_QUEUE"
)

// ReportSummary is the per-batch outcome parsed from the result report.
type ReportSummary struct {
	Processed int
	Accepted  int
	Rejected  int
	Raw       json.RawMessage
}

// Client is the marketplace feed surface the publisher depends on.
type Client interface {
	// SubmitInventoryFeed uploads the payload and creates a feed,
	// returning the platform submission id.
	SubmitInventoryFeed(ctx context.Context, payload []byte) (string, error)

	// FeedStatus returns the processing status and, once terminal, the
	// result document id.
	FeedStatus(ctx context.Context, feedID string) (status, resultDocumentID string, err error)

	// FetchReport downloads and parses the result report.
	FetchReport(ctx context.Context, resultDocumentID string) (*ReportSummary, error)
}

// AmazonConfig carries the SP-API credentials and endpoints.
type AmazonConfig struct {
	Endpoint      string
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	SellerID      string
	MarketplaceID string
}

// AmazonClient implements Client against the Selling Partner API.
type AmazonClient struct {
	cfg        AmazonConfig
	httpClient *http.Client

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewAmazonClient(cfg AmazonConfig) *AmazonClient {
	return &AmazonClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// token returns a cached LWA access token, refreshing it when less than
// a minute of validity remains.
func (c *AmazonClient) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.cfg.RefreshToken},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token exchange returned %d: %s", resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// doJSON issues an authenticated SP-API request and decodes the response
// into out. A 429 is surfaced as backoff.RetryAfter using the server's
// Retry-After header so the retry loop honours the platform's pacing.
func (c *AmazonClient) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("x-amz-access-token", token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		seconds := 2
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if parsed, perr := strconv.Atoi(ra); perr == nil && parsed > 0 {
				seconds = parsed
			}
		}
		return backoff.RetryAfter(seconds)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response of %s %s: %w", method, path, err)
		}
	}
	return nil
}

func (c *AmazonClient) SubmitInventoryFeed(ctx context.Context, payload []byte) (string, error) {
	// 1. Create a feed document to obtain an upload slot.
	var doc struct {
		FeedDocumentID string `json:"feedDocumentId"`
		URL            string `json:"url"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/feeds/2021-06-30/documents",
		map[string]string{"contentType": "application/json; charset=UTF-8"}, &doc)
	if err != nil {
		return "", fmt.Errorf("failed to create feed document: %w", err)
	}

	// 2. Upload the payload to the presigned URL. No auth header here.
	if err := c.upload(ctx, doc.URL, payload); err != nil {
		return "", err
	}

	// 3. Create the feed referencing the document.
	var created struct {
		FeedID string `json:"feedId"`
	}
	err = c.doJSON(ctx, http.MethodPost, "/feeds/2021-06-30/feeds", map[string]interface{}{
		"feedType":            "JSON_LISTINGS_FEED",
		"marketplaceIds":      []string{c.cfg.MarketplaceID},
		"inputFeedDocumentId": doc.FeedDocumentID,
	}, &created)
	if err != nil {
		return "", fmt.Errorf("failed to create feed: %w", err)
	}

	return created.FeedID, nil
}

func (c *AmazonClient) upload(ctx context.Context, presignedURL string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presignedURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("feed document upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("feed document upload returned %d", resp.StatusCode)
	}
	return nil
}

func (c *AmazonClient) FeedStatus(ctx context.Context, feedID string) (string, string, error) {
	var feed struct {
		ProcessingStatus     string `json:"processingStatus"`
		ResultFeedDocumentID string `json:"resultFeedDocumentId"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/feeds/2021-06-30/feeds/"+feedID, nil, &feed); err != nil {
		return "", "", fmt.Errorf("failed to get feed %s: %w", feedID, err)
	}
	return feed.ProcessingStatus, feed.ResultFeedDocumentID, nil
}

func (c *AmazonClient) FetchReport(ctx context.Context, resultDocumentID string) (*ReportSummary, error) {
	var doc struct {
		URL                  string `json:"url"`
		CompressionAlgorithm string `json:"compressionAlgorithm"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/feeds/2021-06-30/documents/"+resultDocumentID, nil, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to get result document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build report request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("report download returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report body: %w", err)
	}

	// Reports are usually gzipped, but the compression field has been
	// observed empty on gzipped bodies, so sniff the magic bytes too.
	if doc.CompressionAlgorithm == "GZIP" || (len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b) {
		gz, gerr := gzip.NewReader(bytes.NewReader(raw))
		if gerr != nil {
			return nil, fmt.Errorf("failed to open gzip report: %w", gerr)
		}
		defer gz.Close()
		if raw, err = io.ReadAll(gz); err != nil {
			return nil, fmt.Errorf("failed to decompress report: %w", err)
		}
	}

	return parseReport(raw)
}

func parseReport(raw []byte) (*ReportSummary, error) {
	var report struct {
		Summary struct {
			MessagesProcessed int `json:"messagesProcessed"`
			MessagesAccepted  int `json:"messagesAccepted"`
			MessagesInvalid   int `json:"messagesInvalid"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to parse result report: %w", err)
	}

	return &ReportSummary{
		Processed: report.Summary.MessagesProcessed,
		Accepted:  report.Summary.MessagesAccepted,
		Rejected:  report.Summary.MessagesInvalid,
		Raw:       raw,
	}, nil
}
