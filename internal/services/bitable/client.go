package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelpress/internal/config"
	"reelpress/internal/logging"
	"reelpress/internal/record"
	"reelpress/internal/services"
)

const userAgent = "reelpress/0.1.0"

// Token is a short-lived bearer token for the record store.
type Token string

// Client talks to the remote tabular record store: token exchange, paginated
// listing, and best-effort batch updates by record identity.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	appSecret  string
	appToken   string
	tableID    string
	viewID     string
	schema     config.Fields
	logger     *slog.Logger
}

// New builds a store client from configuration. Store credentials are
// required here, not at config load, so commands that never touch the store
// keep working without them.
func New(cfg config.Store, logger *slog.Logger) (*Client, error) {
	for name, value := range map[string]string{
		"app_id":     cfg.AppID,
		"app_secret": cfg.AppSecret,
		"app_token":  cfg.AppToken,
		"table_id":   cfg.TableID,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%w: store %s is empty", ErrNotConfigured, name)
		}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		appToken:   cfg.AppToken,
		tableID:    cfg.TableID,
		viewID:     cfg.ViewID,
		schema:     cfg.Fields,
		logger:     logging.NewComponentLogger(logger, "store"),
	}, nil
}

// Schema returns the validated field schema the client was built with.
func (c *Client) Schema() config.Fields { return c.schema }

// Authenticate exchanges the application identity for a tenant access token.
func (c *Client) Authenticate(ctx context.Context) (Token, error) {
	endpoint := c.baseURL + "/open-apis/auth/v3/tenant_access_token/internal/"
	body, err := json.Marshal(map[string]string{"app_id": c.appID, "app_secret": c.appSecret})
	if err != nil {
		return "", services.Wrap(services.ErrAuth, "store", "encode token request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrAuth, "store", "build token request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrAuth, "store", "token exchange", "", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", services.Wrap(services.ErrAuth, "store", "decode token response", "", err)
	}
	if parsed.Code != 0 || parsed.TenantAccessToken == "" {
		return "", services.Wrap(services.ErrAuth, "store", "token exchange",
			fmt.Sprintf("business code %d: %s", parsed.Code, parsed.Msg), nil)
	}
	return Token(parsed.TenantAccessToken), nil
}

type rawRecord struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields"`
}

type listResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		HasMore   bool        `json:"has_more"`
		PageToken string      `json:"page_token"`
		Items     []rawRecord `json:"items"`
	} `json:"data"`
}

// ListAll follows the store's cursor pagination until exhausted and returns
// every row parsed through the field schema, in store order.
func (c *Client) ListAll(ctx context.Context, token Token) ([]record.JobRecord, error) {
	endpoint := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records", c.baseURL, c.appToken, c.tableID)

	var out []record.JobRecord
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("page_size", "500")
		if c.viewID != "" {
			params.Set("view_id", c.viewID)
		}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, services.Wrap(services.ErrFetch, "store", "build list request", "", err)
		}
		req.Header.Set("Authorization", "Bearer "+string(token))
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, services.Wrap(services.ErrFetch, "store", "list records", "", err)
		}

		var parsed listResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, services.Wrap(services.ErrFetch, "store", "decode list response", "", decodeErr)
		}
		if parsed.Code != 0 {
			return nil, services.Wrap(services.ErrFetch, "store", "list records",
				fmt.Sprintf("business code %d: %s", parsed.Code, parsed.Msg), nil)
		}

		for _, raw := range parsed.Data.Items {
			out = append(out, record.FromFields(c.schema, raw.RecordID, raw.Fields))
		}

		if !parsed.Data.HasMore || parsed.Data.PageToken == "" {
			return out, nil
		}
		pageToken = parsed.Data.PageToken
	}
}

// UpdateByIdentity attempts a direct write against one record. Business-level
// rejection returns (false, nil) so the caller can fall back to rescue
// relocation; only transport problems surface as errors. Identities that do
// not look well-formed are rejected locally before any network call.
func (c *Client) UpdateByIdentity(ctx context.Context, token Token, identity string, fields map[string]any) (bool, error) {
	cleaned, ok := record.CleanIdentity(identity)
	if !ok {
		c.logger.Warn("malformed record identity, skipping write",
			logging.String(logging.FieldRecordID, identity),
			logging.String(logging.FieldEventType, "identity_rejected"),
		)
		return false, nil
	}

	endpoint := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records/batch_update", c.baseURL, c.appToken, c.tableID)
	payload := map[string]any{
		"records": []map[string]any{{"record_id": cleaned, "fields": fields}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode update payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+string(token))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("update record: %w", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, fmt.Errorf("decode update response: %w (%s)", err, strings.TrimSpace(string(data)))
	}
	if parsed.Code != 0 {
		c.logger.Warn("record update rejected by store",
			logging.String(logging.FieldRecordID, cleaned),
			logging.Int("business_code", parsed.Code),
			logging.String("business_msg", parsed.Msg),
			logging.String(logging.FieldEventType, "update_rejected"),
		)
		return false, nil
	}
	return true, nil
}

// ErrNotConfigured reports configuration-shaped client construction failures.
var ErrNotConfigured = errors.New("store not configured")
