package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NewWebSearchTool returns a tool that queries the DuckDuckGo Instant Answer
// API. Results come back as a short text summary suitable for feeding to the
// model. The client is shared and bounded so a slow endpoint cannot hold an
// invocation past the registry deadline.
func NewWebSearchTool(optFns ...func(c *http.Client)) *FunctionTool {
	client := &http.Client{Timeout: 8 * time.Second}
	for _, fn := range optFns {
		fn(client)
	}

	return NewFunctionTool(
		"web_search",
		"Search the internet for general information. Use for news, facts, weather, products, etc.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query to look up",
				},
			},
			"required": []string{"query"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("empty search query")
			}

			endpoint := "https://api.duckduckgo.com/?format=json&no_html=1&q=" + url.QueryEscape(query)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("search request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
			}

			var payload struct {
				AbstractText  string `json:"AbstractText"`
				Answer        string `json:"Answer"`
				RelatedTopics []struct {
					Text string `json:"Text"`
				} `json:"RelatedTopics"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return nil, fmt.Errorf("failed to decode search response: %w", err)
			}

			if payload.Answer != "" {
				return payload.Answer, nil
			}
			if payload.AbstractText != "" {
				return payload.AbstractText, nil
			}

			var lines []string
			for _, topic := range payload.RelatedTopics {
				if topic.Text != "" {
					lines = append(lines, topic.Text)
				}
				if len(lines) >= 3 {
					break
				}
			}
			if len(lines) == 0 {
				return fmt.Sprintf("No results found for %q", query), nil
			}
			return strings.Join(lines, "\n"), nil
		},
	)
}

// NewWebhookTool returns a tool that POSTs a JSON payload to a caller-allowed
// URL. The allowlist is matched by prefix; an empty allowlist rejects every
// request, so the tool is inert unless explicitly configured.
func NewWebhookTool(allowedPrefixes []string, optFns ...func(c *http.Client)) *FunctionTool {
	client := &http.Client{Timeout: 8 * time.Second}
	for _, fn := range optFns {
		fn(client)
	}

	allowed := func(target string) bool {
		for _, prefix := range allowedPrefixes {
			if strings.HasPrefix(target, prefix) {
				return true
			}
		}
		return false
	}

	return NewFunctionTool(
		"http_webhook",
		"Send a JSON payload to a pre-approved webhook URL. Use to trigger external automations.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Webhook URL to post to (must match a configured allowlist entry)",
				},
				"payload": map[string]any{
					"type":        "object",
					"description": "JSON object to send as the request body",
				},
			},
			"required": []string{"url"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			target, _ := args["url"].(string)
			if !allowed(target) {
				return nil, fmt.Errorf("url %q is not in the webhook allowlist", target)
			}

			payload, _ := args["payload"].(map[string]any)
			if payload == nil {
				payload = map[string]any{}
			}

			body, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("webhook request failed: %w", err)
			}
			defer resp.Body.Close()

			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			}

			return fmt.Sprintf("webhook accepted (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil
		},
	)
}

// NewReadFileTool returns a tool that reads text files below root. Paths are
// resolved and checked against root so the model cannot escape the sandbox
// with "..".
func NewReadFileTool(root string) *FunctionTool {
	return NewFunctionTool(
		"read_file",
		"Read the contents of a text file from the assistant's workspace.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the workspace root",
				},
			},
			"required": []string{"path"},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			rel, _ := args["path"].(string)
			if rel == "" {
				return nil, fmt.Errorf("empty path")
			}

			absRoot, err := filepath.Abs(root)
			if err != nil {
				return nil, err
			}

			full := filepath.Join(absRoot, filepath.Clean("/"+rel))
			if !strings.HasPrefix(full, absRoot+string(os.PathSeparator)) && full != absRoot {
				return nil, fmt.Errorf("path %q escapes the workspace root", rel)
			}

			data, err := os.ReadFile(full)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			return string(data), nil
		},
	)
}

// NewTimeTool returns a tool reporting the current local time and date.
func NewTimeTool() *FunctionTool {
	return NewFunctionTool(
		"get_time",
		"Get the current time and date. Use when someone asks what time or day it is.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			return time.Now().Format("It's Monday, January 2 at 3:04 PM"), nil
		},
	)
}
