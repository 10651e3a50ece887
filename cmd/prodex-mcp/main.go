package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// errorResponse mirrors the prodex API error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// extractResponse mirrors the prodex GET /extract response.
type extractResponse struct {
	Data json.RawMessage `json:"data"`
	Meta *struct {
		URL      string `json:"url"`
		Stage    string `json:"stage"`
		Source   string `json:"source"`
		Rendered bool   `json:"rendered"`
		Timing   struct {
			TotalMs int64 `json:"total_ms"`
		} `json:"timing"`
	} `json:"meta"`
}

// fieldsResponse mirrors the prodex GET /debug/fields response.
type fieldsResponse struct {
	Data struct {
		URL            string   `json:"url"`
		Rendered       bool     `json:"rendered"`
		StructuredKeys []string `json:"structured_keys"`
		Itemprops      []string `json:"itemprops"`
		Meta           []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"meta"`
	} `json:"data"`
}

func main() {
	apiURL := strings.TrimRight(os.Getenv("PRODEX_API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PRODEX_API_KEY")

	s := server.NewMCPServer(
		"prodex",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	client := &http.Client{Timeout: 120 * time.Second}

	extractTool := mcp.NewTool("extract_product",
		mcp.WithDescription("Extract a product record (name, description, images, price, availability) from an e-commerce page. Falls back to a headless browser for JavaScript-heavy or protected pages."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the product page"),
		),
	)
	s.AddTool(extractTool, handleExtract(client, apiURL, apiKey))

	fieldsTool := mcp.NewTool("inspect_fields",
		mcp.WithDescription("List the structured-data keys, microdata itemprops and meta tags a page exposes. Useful to understand why an extraction picked a given source."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to inspect"),
		),
	)
	s.AddTool(fieldsTool, handleFields(client, apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiGet calls a prodex endpoint with ?url=target. A non-2xx status is
// returned as an error carrying the API's code and message.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path, target string) ([]byte, error) {
	endpoint := apiURL + path + "?" + url.Values{"url": {target}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var apiErr errorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
			return nil, fmt.Errorf("[%s] %s", apiErr.Code, apiErr.Error)
		}
		return nil, fmt.Errorf("API returned HTTP %d", resp.StatusCode)
	}
	return body, nil
}

func handleExtract(client *http.Client, apiURL, apiKey string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		body, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/extract", target)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
		}

		var resp extractResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
			pretty.Write(resp.Data)
		}

		var result string
		if resp.Meta != nil {
			result = fmt.Sprintf("Source: %s\nStage: %s", resp.Meta.URL, resp.Meta.Stage)
			if resp.Meta.Source != "" {
				result += " (" + resp.Meta.Source + ")"
			}
			result += fmt.Sprintf("\nRendered: %t\nTime: %dms\n\n", resp.Meta.Rendered, resp.Meta.Timing.TotalMs)
		}
		result += "Product:\n" + pretty.String()

		return mcp.NewToolResultText(result), nil
	}
}

func handleFields(client *http.Client, apiURL, apiKey string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		body, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/debug/fields", target)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspection failed: %v", err)), nil
		}

		var resp fieldsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Page: %s (rendered: %t)\n", resp.Data.URL, resp.Data.Rendered)

		sb.WriteString("\n## Structured keys\n")
		for _, k := range resp.Data.StructuredKeys {
			sb.WriteString("- " + k + "\n")
		}
		sb.WriteString("\n## Itemprops\n")
		for _, p := range resp.Data.Itemprops {
			sb.WriteString("- " + p + "\n")
		}
		sb.WriteString("\n## Meta tags\n")
		for _, m := range resp.Data.Meta {
			fmt.Fprintf(&sb, "- %s: %s\n", m.Key, m.Value)
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}
