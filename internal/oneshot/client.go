// Package oneshot is a client for the 1Shot transaction execution API.
package oneshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/metrics"
)

const (
	tokenRefreshSkew = 10 * time.Second
	maxErrorBody     = 512
	findPageSize     = 50
	maxFindPages     = 20
)

// Client talks to the gateway on behalf of one business.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time

	tokenMu  sync.Mutex
	token    string
	tokenExp time.Time

	keysMu sync.RWMutex
	keys   map[string]string
}

// New builds a client. httpClient is usually netutil.NewClient.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		cfg:  cfg,
		http: httpClient,
		now:  time.Now,
		keys: make(map[string]string),
	}
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.cfg }

// ListEndpoints returns the business's transaction endpoints matching f on
// the requested page.
func (c *Client) ListEndpoints(ctx context.Context, f EndpointFilter) ([]Endpoint, error) {
	matched, _, err := c.listEndpoints(ctx, f)
	return matched, err
}

func (c *Client) listEndpoints(ctx context.Context, f EndpointFilter) ([]Endpoint, page[Endpoint], error) {
	q := url.Values{}
	if f.ChainID != 0 {
		q.Set("chainId", chainParam(f.ChainID))
	}
	if f.Name != "" {
		q.Set("name", f.Name)
	}
	if f.ContractAddress != "" {
		q.Set("contractAddress", f.ContractAddress)
	}
	if f.FunctionName != "" {
		q.Set("functionName", f.FunctionName)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	var out page[Endpoint]
	if err := c.do(ctx, "list_endpoints", http.MethodGet, c.businessPath("transactions"), q, nil, &out); err != nil {
		return nil, out, err
	}
	matched := make([]Endpoint, 0, len(out.Response))
	for _, e := range out.Response {
		if f.Matches(e) {
			matched = append(matched, e)
		}
	}
	c.rememberKeys(matched...)
	return matched, out, nil
}

// FindEndpoint returns the first endpoint matching f or ErrNotFound. The
// API may treat the filter as a hint, so pages are walked until a match
// turns up or totalResults is exhausted.
func (c *Client) FindEndpoint(ctx context.Context, f EndpointFilter) (Endpoint, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = findPageSize
	}
	for seen := 0; f.Page <= maxFindPages; f.Page++ {
		list, pg, err := c.listEndpoints(ctx, f)
		if err != nil {
			return Endpoint{}, err
		}
		if len(list) > 0 {
			return list[0], nil
		}
		seen += len(pg.Response)
		if len(pg.Response) == 0 || seen >= pg.TotalResults {
			break
		}
	}
	return Endpoint{}, ErrNotFound
}

// GetEndpoint fetches one endpoint by id.
func (c *Client) GetEndpoint(ctx context.Context, id string) (Endpoint, error) {
	var out Endpoint
	if err := c.do(ctx, "get_endpoint", http.MethodGet, "/transactions/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Endpoint{}, err
	}
	c.rememberKeys(out)
	return out, nil
}

// CreateEndpoint registers a new transaction endpoint.
func (c *Client) CreateEndpoint(ctx context.Context, spec EndpointSpec) (Endpoint, error) {
	if spec.CallbackURL == "" {
		spec.CallbackURL = c.cfg.CallbackURL
	}
	var out Endpoint
	if err := c.do(ctx, "create_endpoint", http.MethodPost, c.businessPath("transactions"), nil, spec, &out); err != nil {
		return Endpoint{}, err
	}
	c.rememberKeys(out)
	return out, nil
}

// Execute submits a transaction on endpointID. memo is echoed back verbatim
// in the execution callback.
func (c *Client) Execute(ctx context.Context, endpointID string, params map[string]any, memo string) (Execution, error) {
	body := struct {
		Params map[string]any `json:"params"`
		Memo   string         `json:"memo,omitempty"`
	}{Params: params, Memo: memo}
	var out Execution
	if err := c.do(ctx, "execute", http.MethodPost, "/transactions/"+url.PathEscape(endpointID)+"/execute", nil, body, &out); err != nil {
		return Execution{}, err
	}
	return out, nil
}

// ListWallets returns the business's escrow wallets matching f.
func (c *Client) ListWallets(ctx context.Context, f WalletFilter) ([]Wallet, error) {
	q := url.Values{}
	if f.ChainID != 0 {
		q.Set("chainId", chainParam(f.ChainID))
	}
	if f.Address != "" {
		q.Set("address", f.Address)
	}
	var out page[Wallet]
	if err := c.do(ctx, "list_wallets", http.MethodGet, c.businessPath("wallets"), q, nil, &out); err != nil {
		return nil, err
	}
	matched := out.Response[:0]
	for _, w := range out.Response {
		if f.Matches(w) {
			matched = append(matched, w)
		}
	}
	return matched, nil
}

// PublicKey returns the callback verification key of endpointID, fetching
// the endpoint once and caching the result.
func (c *Client) PublicKey(ctx context.Context, endpointID string) (string, error) {
	c.keysMu.RLock()
	key, ok := c.keys[endpointID]
	c.keysMu.RUnlock()
	if ok {
		return key, nil
	}
	ep, err := c.GetEndpoint(ctx, endpointID)
	if err != nil {
		return "", err
	}
	if ep.PublicKey == "" {
		return "", fmt.Errorf("%w: public key for endpoint %s", ErrNotFound, endpointID)
	}
	return ep.PublicKey, nil
}

func (c *Client) rememberKeys(eps ...Endpoint) {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()
	for _, e := range eps {
		if e.ID != "" && e.PublicKey != "" {
			c.keys[e.ID] = e.PublicKey
		}
	}
}

func (c *Client) businessPath(suffix string) string {
	return "/business/" + url.PathEscape(c.cfg.BusinessID) + "/" + suffix
}

// accessToken returns a cached bearer token, refreshing it shortly before expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.APIKey)
	form.Set("client_secret", c.cfg.APISecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.send(ctx, "token", req, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", &GatewayError{Op: "token", Status: http.StatusOK, Body: "empty access token"}
	}
	ttl := time.Duration(tok.ExpiresIn)*time.Second - tokenRefreshSkew
	if ttl < 0 {
		ttl = 0
	}
	c.token = tok.AccessToken
	c.tokenExp = c.now().Add(ttl)
	return c.token, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	if !c.cfg.Enabled() {
		return ErrNotConfigured
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	target := c.cfg.BaseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("oneshot: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, op, req, out)
}

func (c *Client) send(ctx context.Context, op string, req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.GatewayLatency.WithLabelValues(op, "error").Observe(elapsed.Seconds())
		logger.Warn(ctx, logger.ComponentGateway, "gateway."+op,
			slog.String("status", "fail"),
			slog.Duration("duration", elapsed),
			slog.Any("err", err),
		)
		return fmt.Errorf("oneshot: %s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.GatewayLatency.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(elapsed.Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		gerr := &GatewayError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		logger.Warn(ctx, logger.ComponentGateway, "gateway."+op,
			slog.String("status", "fail"),
			slog.Int("code", resp.StatusCode),
			slog.Duration("duration", elapsed),
			slog.String("body", logger.SanitizeLimit(gerr.Body, 200)),
		)
		return gerr
	}
	logger.Debug(ctx, logger.ComponentGateway, "gateway."+op,
		slog.String("status", "ok"),
		slog.Int("code", resp.StatusCode),
		slog.Duration("duration", elapsed),
	)
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("oneshot: %s: decode: %w", op, err)
	}
	return nil
}
