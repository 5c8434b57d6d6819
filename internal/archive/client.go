package archive

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// waybackTimestamp is the 14-digit UTC layout used in archive URLs and
// availability lookups.
const waybackTimestamp = "20060102150405"

// snapshotPrefix is where captured pages are served from; used to synthesize
// an archive URL when the save endpoint returns no location header.
const snapshotPrefix = "https://web.archive.org/web/"

// ClientConfig controls endpoints, identification and per-call timeouts.
type ClientConfig struct {
	SaveEndpoint         string
	ProbeEndpoint        string
	AvailabilityEndpoint string
	UserAgent            string
	SubmitTimeout        time.Duration
	TestTimeout          time.Duration
	AvailabilityTimeout  time.Duration
}

// Client submits URLs to the remote archive service. It performs no
// persistence; transport is kept separate from storage.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	clock      Clock
}

// NewClient constructs a Client. Redirects are not followed so that the
// [300,400) success band and its Location header stay observable.
func NewClient(cfg ClientConfig, clock Clock) *Client {
	if cfg.SaveEndpoint == "" {
		cfg.SaveEndpoint = "https://web.archive.org/save/"
	}
	if cfg.ProbeEndpoint == "" {
		cfg.ProbeEndpoint = "https://s3.us.archive.org/"
	}
	if cfg.AvailabilityEndpoint == "" {
		cfg.AvailabilityEndpoint = "https://archive.org/wayback/available"
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 60 * time.Second
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = 15 * time.Second
	}
	if cfg.AvailabilityTimeout <= 0 {
		cfg.AvailabilityTimeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:   cfg,
		clock: clock,
	}
}

// Submit sends one URL to the save endpoint using the given strategy and
// classifies the result. It never returns an error; every failure mode maps
// into the Outcome taxonomy.
func (c *Client) Submit(ctx context.Context, rawURL string, strategy Strategy, creds Credentials) Outcome {
	if !validAbsoluteURL(rawURL) {
		return Outcome{Kind: ErrInvalidInput, Message: "Invalid URL provided"}
	}
	if strategy == StrategySigned && !creds.Complete() {
		return Outcome{Kind: ErrMissingCredentials, Message: "API credentials not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SaveEndpoint+rawURL, nil)
	if err != nil {
		return Outcome{Kind: ErrInvalidInput, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if strategy == StrategySigned {
		c.sign(req, creds)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind, msg := ClassifyTransportError(err)
		return Outcome{Kind: kind, Message: msg}
	}
	defer resp.Body.Close()
	drain(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return Outcome{
			Success:    true,
			StatusCode: resp.StatusCode,
			ArchiveURL: c.archiveURLFromResponse(resp, rawURL),
		}
	}
	kind, msg := ClassifyStatusCode(resp.StatusCode)
	return Outcome{StatusCode: resp.StatusCode, Kind: kind, Message: msg}
}

// archiveURLFromResponse prefers the Content-Location header, then Location,
// then synthesizes the deterministic snapshot URL.
func (c *Client) archiveURLFromResponse(resp *http.Response, rawURL string) string {
	if loc := resp.Header.Get("Content-Location"); loc != "" {
		return loc
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		return loc
	}
	return snapshotPrefix + c.clock.Now().UTC().Format(waybackTimestamp) + "/" + rawURL
}

// sign adds the Archive.org S3-style authorization header. The canonical
// string covers only the method, the GMT date and the root path.
func (c *Client) sign(req *http.Request, creds Credentials) {
	date := c.clock.Now().UTC().Format(http.TimeFormat)
	stringToSign := "GET\n\n\n" + date + "\n/"
	mac := hmac.New(sha1.New, []byte(creds.SecretKey))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	req.Header.Set("Date", date)
	req.Header.Set("Authorization", "AWS "+creds.AccessKey+":"+signature)
}

// TestResult is the outcome of a credential probe.
type TestResult struct {
	Success bool      `json:"success"`
	Kind    ErrorKind `json:"error_type,omitempty"`
	Message string    `json:"message"`
}

// TestConnection issues a signed probe against the account root to validate
// credentials without performing a real submission.
func (c *Client) TestConnection(ctx context.Context, creds Credentials) TestResult {
	if !creds.Complete() {
		return TestResult{Kind: ErrMissingCredentials, Message: "API key and secret are required."}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.TestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProbeEndpoint, nil)
	if err != nil {
		return TestResult{Kind: ErrInvalidInput, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	c.sign(req, creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind, msg := ClassifyTransportError(err)
		return TestResult{Kind: kind, Message: msg}
	}
	defer resp.Body.Close()
	drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return TestResult{Success: true, Message: "API connection successful!"}
	default:
		kind, msg := ClassifyStatusCode(resp.StatusCode)
		return TestResult{Kind: kind, Message: msg}
	}
}

// Snapshot describes the closest archived capture of a URL.
type Snapshot struct {
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Available bool   `json:"available"`
}

type availabilityResponse struct {
	ArchivedSnapshots struct {
		Closest *Snapshot `json:"closest"`
	} `json:"archived_snapshots"`
}

// CheckAvailability asks the availability endpoint for the closest archived
// snapshot of the URL. A nil Snapshot with nil error means no capture exists.
func (c *Client) CheckAvailability(ctx context.Context, rawURL string) (*Snapshot, error) {
	if !validAbsoluteURL(rawURL) {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AvailabilityTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("url", rawURL)
	query.Set("timestamp", c.clock.Now().UTC().Format(waybackTimestamp))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AvailabilityEndpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build availability request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("availability check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, fmt.Errorf("availability check returned %d", resp.StatusCode)
	}

	var payload availabilityResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode availability response: %w", err)
	}
	return payload.ArchivedSnapshots.Closest, nil
}

func validAbsoluteURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 1<<16))
}
