package forward

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Placeholder is replaced by the hex token in the endpoint template.
const Placeholder = "{}"

// Config holds settings for the HTTP endpoint tokens are posted to.
type Config struct {
	CAFile      string `yaml:"ca_file"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Client posts tokens to an endpoint URL template.
type Client struct {
	endpoint string
	username string
	password string
	http     *http.Client
}

// New creates a Client for endpoint, which must contain Placeholder.
func New(endpoint string, cfg Config) (*Client, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CAFile)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: caCertPool}
	}

	return &Client{
		endpoint: endpoint,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// ValidateEndpoint checks that endpoint is a usable URL template.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint missing")
	}
	if !strings.Contains(endpoint, Placeholder) {
		return fmt.Errorf("endpoint %q has no %s placeholder", endpoint, Placeholder)
	}
	u, err := url.Parse(URL(endpoint, "00"))
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %q must be http or https", endpoint)
	}
	return nil
}

// URL substitutes token into the endpoint template.
func URL(endpoint, token string) string {
	return strings.ReplaceAll(endpoint, Placeholder, token)
}

// Post sends an empty POST for token. Any non-2xx status is an error.
func (c *Client) Post(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, URL(c.endpoint, token), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("make request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}
