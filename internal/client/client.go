// Package client is a minimal Confluent-compatible Schema Registry REST
// client. It covers exactly the surface the replicate command drives against
// a source/target registry: subject and version listing, schema register and
// delete, compatibility config, and subject/global mode switching for
// ID-preserving imports.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SchemaRegistryClient talks to one Schema Registry over REST.
type SchemaRegistryClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Auth       *AuthConfig
	Context    string // schema context; empty for the default context "."
}

// AuthConfig holds basic-auth credentials.
type AuthConfig struct {
	Username string
	Password string
}

// Schema is a registered schema as the REST API represents it. Metadata and
// RuleSet are opaque to this client; they are carried through untouched so a
// replicated schema keeps whatever data-contract payload the source had.
type Schema struct {
	Subject    string            `json:"subject,omitempty"`
	Version    int               `json:"version,omitempty"`
	ID         int               `json:"id,omitempty"`
	SchemaType string            `json:"schemaType,omitempty"`
	Schema     string            `json:"schema"`
	References []SchemaReference `json:"references,omitempty"`
	Metadata   json.RawMessage   `json:"metadata,omitempty"`
	RuleSet    json.RawMessage   `json:"ruleSet,omitempty"`
	Deleted    bool              `json:"deleted,omitempty"`
}

// SchemaReference names another subject/version this schema depends on.
type SchemaReference struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

// Config is a compatibility configuration entry. The registry returns
// compatibilityLevel on GET and accepts compatibility on PUT.
type Config struct {
	CompatibilityLevel string `json:"compatibilityLevel,omitempty"`
	Compatibility      string `json:"compatibility,omitempty"`
}

// Mode is the registry's (or one subject's) operating mode.
type Mode struct {
	Mode string `json:"mode"`
}

// NewClient creates a client for the registry at baseURL.
func NewClient(baseURL string, auth *AuthConfig) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Auth:       auth,
	}
}

// WithContext returns a copy of the client scoped to a schema context.
func (c *SchemaRegistryClient) WithContext(ctx string) *SchemaRegistryClient {
	scoped := *c
	scoped.Context = ctx
	return &scoped
}

// buildURL constructs the URL with optional context prefix.
func (c *SchemaRegistryClient) buildURL(path string) string {
	if c.Context != "" && c.Context != "." {
		return fmt.Sprintf("%s/contexts/%s%s", c.BaseURL, url.PathEscape(c.Context), path)
	}
	return c.BaseURL + path
}

func (c *SchemaRegistryClient) doRequest(method, urlPath string, body interface{}) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, urlPath, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	req.Header.Set("Accept", "application/vnd.schemaregistry.v1+json")

	if c.Auth != nil && c.Auth.Username != "" {
		req.SetBasicAuth(c.Auth.Username, c.Auth.Password)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// call performs the request and decodes a 200 response into out (skipped when
// out is nil). Any other status becomes an error carrying the response body
// and "status NNN", which callers match on to classify retryability.
func (c *SchemaRegistryClient) call(method, urlPath, what string, body, out interface{}) error {
	respBody, statusCode, err := c.doRequest(method, urlPath, body)
	if err != nil {
		return err
	}
	if statusCode != http.StatusOK {
		return fmt.Errorf("failed to %s: %s (status %d)", what, string(respBody), statusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", what, err)
	}
	return nil
}

// GetSubjects lists every subject, optionally including soft-deleted ones.
func (c *SchemaRegistryClient) GetSubjects(includeDeleted bool) ([]string, error) {
	urlPath := c.buildURL("/subjects")
	if includeDeleted {
		urlPath += "?deleted=true"
	}
	var subjects []string
	if err := c.call("GET", urlPath, "get subjects", nil, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}

// GetVersions lists a subject's versions.
func (c *SchemaRegistryClient) GetVersions(subject string, includeDeleted bool) ([]int, error) {
	urlPath := c.buildURL(fmt.Sprintf("/subjects/%s/versions", url.PathEscape(subject)))
	if includeDeleted {
		urlPath += "?deleted=true"
	}
	var versions []int
	if err := c.call("GET", urlPath, "get versions", nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// GetSchema fetches one subject version. version is a number or "latest".
func (c *SchemaRegistryClient) GetSchema(subject string, version string) (*Schema, error) {
	urlPath := c.buildURL(fmt.Sprintf("/subjects/%s/versions/%s", url.PathEscape(subject), version))
	var schema Schema
	if err := c.call("GET", urlPath, "get schema", nil, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// RegisterSchema registers a schema under subject and returns its ID. A
// non-zero schema.ID is forwarded so a registry in IMPORT mode assigns that
// exact ID instead of minting one.
func (c *SchemaRegistryClient) RegisterSchema(subject string, schema *Schema) (int, error) {
	urlPath := c.buildURL(fmt.Sprintf("/subjects/%s/versions", url.PathEscape(subject)))

	reqBody := map[string]interface{}{
		"schema": schema.Schema,
	}
	if schema.SchemaType != "" && schema.SchemaType != "AVRO" {
		reqBody["schemaType"] = schema.SchemaType
	}
	if len(schema.References) > 0 {
		reqBody["references"] = schema.References
	}
	if len(schema.Metadata) > 0 {
		reqBody["metadata"] = schema.Metadata
	}
	if len(schema.RuleSet) > 0 {
		reqBody["ruleSet"] = schema.RuleSet
	}
	if schema.ID > 0 {
		reqBody["id"] = schema.ID
	}

	var result struct {
		ID int `json:"id"`
	}
	if err := c.call("POST", urlPath, "register schema", reqBody, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

// DeleteSubject soft-deletes a subject, or permanently deletes it when
// permanent is true. Returns the deleted versions.
func (c *SchemaRegistryClient) DeleteSubject(subject string, permanent bool) ([]int, error) {
	urlPath := c.buildURL(fmt.Sprintf("/subjects/%s", url.PathEscape(subject)))
	if permanent {
		urlPath += "?permanent=true"
	}
	var versions []int
	if err := c.call("DELETE", urlPath, "delete subject", nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// GetConfig returns the global compatibility configuration.
func (c *SchemaRegistryClient) GetConfig() (*Config, error) {
	var config Config
	if err := c.call("GET", c.buildURL("/config"), "get config", nil, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// SetConfig sets the global compatibility level.
func (c *SchemaRegistryClient) SetConfig(compatibility string) error {
	body := map[string]string{"compatibility": compatibility}
	return c.call("PUT", c.buildURL("/config"), "set config", body, nil)
}

// SetSubjectConfig sets a subject's compatibility level.
func (c *SchemaRegistryClient) SetSubjectConfig(subject string, compatibility string) error {
	urlPath := c.buildURL(fmt.Sprintf("/config/%s", url.PathEscape(subject)))
	body := map[string]string{"compatibility": compatibility}
	return c.call("PUT", urlPath, "set subject config", body, nil)
}

// GetMode returns the registry's global mode.
func (c *SchemaRegistryClient) GetMode() (*Mode, error) {
	var mode Mode
	if err := c.call("GET", c.buildURL("/mode"), "get mode", nil, &mode); err != nil {
		return nil, err
	}
	return &mode, nil
}

// SetMode sets the registry's global mode (READWRITE, READONLY, IMPORT).
func (c *SchemaRegistryClient) SetMode(mode string) error {
	body := map[string]string{"mode": mode}
	return c.call("PUT", c.buildURL("/mode"), "set mode", body, nil)
}

// SetSubjectMode sets one subject's mode.
func (c *SchemaRegistryClient) SetSubjectMode(subject string, mode string) error {
	urlPath := c.buildURL(fmt.Sprintf("/mode/%s", url.PathEscape(subject)))
	body := map[string]string{"mode": mode}
	return c.call("PUT", urlPath, "set subject mode", body, nil)
}
