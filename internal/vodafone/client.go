// Package vodafone implements the authenticated MeinVodafone API session:
// login, mobile-contract discovery and unbilled-usage retrieval. All I/O
// failures are converted into return-value signals; nothing on the network
// path returns an error to the caller.
package vodafone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mwiesel/vodamon/internal/metrics"
	"github.com/mwiesel/vodamon/internal/usage"
)

const (
	defaultMintHost = "https://www.vodafone.de/mint"
	defaultAPIHost  = "https://www.vodafone.de/api"

	userAgent     = "MeinVodafone/14.3 (iPhone; iOS 17.4; Scale/3.00)"
	headerReferer = "https://www.vodafone.de/meinvodafone/services/"
	xVfClientID   = "MyVFWeb"

	requestTimeout = 30 * time.Second
)

// sessionStartRequest is the login payload. The empty context/conversation/
// target fields are required by the endpoint.
type sessionStartRequest struct {
	AuthnIdentifier string `json:"authnIdentifier"`
	Credential      string `json:"credential"`
	Context         string `json:"context"`
	Conversation    string `json:"conversation"`
	TargetURL       string `json:"targetURL"`
}

type sessionStartResponse struct {
	UserID string `json:"userId"`
}

type hashedID struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type hashingResponse struct {
	HashedIDs []hashedID `json:"hashedIds"`
}

// FetchResult classifies one usage fetch. StatusCode is nil on network or
// local validation failure; Usage is set only on a 200 response.
type FetchResult struct {
	StatusCode   *int
	Usage        *usage.ContractUsage
	ErrorMessage string
}

func (r FetchResult) OK() bool {
	return r.StatusCode != nil && *r.StatusCode == http.StatusOK
}

// Unauthorized reports the distinguished 401 condition the caller must
// interpret as "needs re-login".
func (r FetchResult) Unauthorized() bool {
	return r.StatusCode != nil && *r.StatusCode == http.StatusUnauthorized
}

// Client owns one authenticated session for a credential identity. All
// upstream calls for that account flow through it. Clients are shared
// across refresh cycles via the Pool; the authentication flag is the only
// mutable state.
type Client struct {
	username string
	password string

	mintHost   string
	apiHost    string
	httpClient *http.Client
	normalizer *usage.Normalizer
	logger     zerolog.Logger
	now        func() time.Time

	mu            sync.RWMutex
	authenticated bool
}

// ClientOption customizes a Client at construction time. The pool passes
// its options through to every client it creates.
type ClientOption func(*Client)

// WithHosts overrides the provider endpoints. Tests point these at local
// stubs.
func WithHosts(mintHost, apiHost string) ClientOption {
	return func(c *Client) {
		c.mintHost = mintHost
		c.apiHost = apiHost
	}
}

func NewClient(username, password string, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		username: username,
		password: password,
		mintHost: defaultMintHost,
		apiHost:  defaultAPIHost,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			// The vlux endpoints answer interesting failures with redirects
			// to the web login page; those must surface as-is.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		normalizer: usage.NewNormalizer(logger),
		logger:     logger.With().Str("component", "client").Str("username", username).Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Username() string { return c.username }

func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Client) setAuthenticated(v bool) {
	c.mu.Lock()
	c.authenticated = v
	c.mu.Unlock()
}

// MarkUnauthenticated forces a re-login on the next EnsureAuthenticated.
// Called by the orchestrator when a fetch comes back 401.
func (c *Client) MarkUnauthenticated() { c.setAuthenticated(false) }

// Login starts a new API session. It returns true iff the endpoint answers
// 200 with a non-empty user id; every failure is logged and yields false
// with no state change.
func (c *Client) Login(ctx context.Context) bool {
	ok := c.login(ctx)
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	return ok
}

func (c *Client) login(ctx context.Context) bool {
	c.logger.Debug().Msg("initiating new login")

	payload, err := json.Marshal(sessionStartRequest{
		AuthnIdentifier: c.username,
		Credential:      c.password,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("encoding login payload")
		return false
	}

	url := c.mintHost + "/rest/v60/session/start"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		c.logger.Error().Err(err).Msg("creating login request")
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("login request failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error().Int("status", resp.StatusCode).Msg("login rejected")
		c.logger.Debug().Str("body", string(body)).Msg("login failure response")
		return false
	}

	var session sessionStartResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		c.logger.Error().Err(err).Msg("decoding login response")
		return false
	}
	if session.UserID == "" {
		c.logger.Error().Msg("login response carries no user id")
		return false
	}

	c.setAuthenticated(true)
	c.logger.Debug().Msg("login succeeded")
	return true
}

// Contracts lists the account's mobile contract identifiers. Failures are
// logged and produce an empty slice, never an error.
func (c *Client) Contracts(ctx context.Context) []string {
	c.logger.Debug().Msg("listing contracts")

	req, err := c.newAPIRequest(ctx, c.apiHost+"/vluxgate/vlux/hashing")
	if err != nil {
		c.logger.Error().Err(err).Msg("creating contract listing request")
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("contract listing request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error().Int("status", resp.StatusCode).Msg("contract listing rejected")
		return nil
	}

	var listing hashingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		c.logger.Error().Err(err).Msg("decoding contract listing")
		return nil
	}

	var contracts []string
	for _, entry := range listing.HashedIDs {
		if entry.Type == "mobile" && entry.ID != "" {
			contracts = append(contracts, entry.ID)
		}
	}
	c.logger.Debug().Int("count", len(contracts)).Msg("contracts listed")
	return contracts
}

// ContractUsage fetches and normalizes the unbilled-usage document for one
// contract. An empty id fails locally without a network call. Non-200
// statuses, 401 included, are passed through for the caller to classify.
func (c *Client) ContractUsage(ctx context.Context, contractID string) FetchResult {
	if contractID == "" {
		metrics.FetchesTotal.WithLabelValues("invalid").Inc()
		return FetchResult{ErrorMessage: "Contract number is required"}
	}

	res := c.fetchUsage(ctx, contractID)
	metrics.FetchesTotal.WithLabelValues(classifyFetch(res)).Inc()
	return res
}

func classifyFetch(res FetchResult) string {
	switch {
	case res.OK():
		return "ok"
	case res.Unauthorized():
		return "unauthorized"
	case res.StatusCode == nil:
		return "network_error"
	default:
		return "rejected"
	}
}

func (c *Client) fetchUsage(ctx context.Context, contractID string) FetchResult {

	log := c.logger.With().Str("contract", contractID).Logger()
	log.Debug().Msg("fetching contract usage")

	req, err := c.newAPIRequest(ctx, c.apiHost+"/vluxgate/vlux/mobile/unbilledUsage/"+contractID)
	if err != nil {
		return FetchResult{ErrorMessage: fmt.Sprintf("creating usage request: %v", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("usage request failed")
		return FetchResult{ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	if status != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if status == http.StatusUnauthorized {
			c.MarkUnauthenticated()
			log.Debug().Msg("user appears unauthorized")
		} else {
			log.Error().Int("status", status).Msg("usage fetch rejected")
		}
		log.Debug().Int("status", status).Str("body", string(body)).Msg("usage failure response")
		return FetchResult{StatusCode: &status, ErrorMessage: string(body)}
	}

	var doc usage.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		log.Error().Err(err).Msg("decoding usage response")
		return FetchResult{ErrorMessage: fmt.Sprintf("decoding usage response: %v", err)}
	}

	normalized := c.normalizer.Normalize(contractID, doc)
	return FetchResult{StatusCode: &status, Usage: &normalized}
}

// Close releases the underlying connection pool. Idempotent.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// newAPIRequest stamps the fixed client identity and the unix-seconds
// freshness token the vlux endpoints require.
func (c *Client) newAPIRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", headerReferer)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Vf-Api", strconv.FormatInt(c.now().Unix(), 10))
	req.Header.Set("X-Vf-Clientid", xVfClientID)
	return req, nil
}
