package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/viralforge/mesh/services/trust-compliance/M42-trust-layer-service/internal/contracts"
)

type apiClient struct {
	baseURL string
	http    *http.Client
}

// apiError carries the error envelope returned by the service.
type apiError struct {
	StatusCode int
	Payload    contracts.ErrorPayload
}

func (e *apiError) Error() string {
	if e.Payload.Code == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Payload.Code, e.Payload.Message)
}

type envelope struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    json.RawMessage        `json:"data,omitempty"`
	Error   contracts.ErrorPayload `json:"error"`
}

func newClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(flagServer, "/"),
		http:    &http.Client{Timeout: flagTimeout},
	}
}

// do sends the request and returns the raw data field of a success envelope.
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	token, role, err := bearer()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if flagIdemKey != "" && method != http.MethodGet {
		req.Header.Set("Idempotency-Key", flagIdemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || env.Status == "error" {
		return nil, &apiError{StatusCode: resp.StatusCode, Payload: env.Error}
	}
	return env.Data, nil
}

func printData(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		_, err := fmt.Fprintln(w, "{}")
		return err
	}
	switch strings.ToLower(flagOutput) {
	case "yaml":
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case "json", "":
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, data, "", "  "); err != nil {
			return err
		}
		pretty.WriteByte('\n')
		_, err := w.Write(pretty.Bytes())
		return err
	default:
		return fmt.Errorf("unsupported output format %q", flagOutput)
	}
}
