package octocert

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const apiKeyHeader = "X-Octopus-ApiKey"

// APIError is a non-2xx response from the deployment server. The body is
// kept verbatim so the caller can log exactly what the server said.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deployment server returned %d: %s", e.StatusCode, e.Body)
}

// DeployClient talks to the deployment server's certificate store.
type DeployClient struct {
	baseURL    string
	space      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewDeployClient(serverURI, space, apiKey string, logger *slog.Logger) *DeployClient {
	if logger == nil {
		panic("NewDeployClient: received nil logger")
	}
	return &DeployClient{
		baseURL:    strings.TrimRight(serverURI, "/"),
		space:      space,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		logger:     logger.With("component", "deploy_client"),
	}
}

// Search returns all certificate records the server finds for the given
// search term. Filtering down to exact matches is the caller's job.
func (c *DeployClient) Search(ctx context.Context, domain string) ([]CertificateRecord, error) {
	path := fmt.Sprintf("/api/%s/certificates?search=%s", c.space, url.QueryEscape(domain))
	var list certificateList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("certificate search for %q failed: %w", domain, err)
	}
	c.logger.Debug("certificate search completed", "domain", domain, "results", len(list.Items))
	return list.Items, nil
}

// Create publishes the issued certificate as a new record.
func (c *DeployClient) Create(ctx context.Context, name string, issued *IssuedCertificate) error {
	body := CreateCertificateRequest{
		Name:            name,
		CertificateData: SensitiveValue{HasValue: true, NewValue: base64.StdEncoding.EncodeToString(issued.PfxData)},
		Password:        SensitiveValue{HasValue: true, NewValue: issued.Password},
	}
	path := fmt.Sprintf("/api/%s/certificates", c.space)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to publish certificate %q: %w", name, err)
	}
	c.logger.Info("published new certificate", "name", name, "domain", issued.Domain)
	return nil
}

// Replace supersedes the record with the given id. The server archives the
// old record and links it to the replacement.
func (c *DeployClient) Replace(ctx context.Context, id string, issued *IssuedCertificate) error {
	body := ReplaceCertificateRequest{
		CertificateData: base64.StdEncoding.EncodeToString(issued.PfxData),
		Password:        issued.Password,
	}
	path := fmt.Sprintf("/api/%s/certificates/%s/replace", c.space, url.PathEscape(id))
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to replace certificate %s: %w", id, err)
	}
	c.logger.Info("replaced certificate", "id", id, "domain", issued.Domain)
	return nil
}

// do sends one request and decodes the response into out when non-nil.
// Any non-2xx status becomes an *APIError carrying the response body.
func (c *DeployClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}
