package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// CLI flags
var (
	apiURL   = flag.String("api-url", "http://localhost:8080", "prodex API base URL")
	apiKey   = flag.String("api-key", "", "API key for authenticated requests")
	runs     = flag.Int("runs", 3, "Number of runs per URL for averaging")
	output   = flag.String("output", "benchmark-results.json", "JSON output file path")
	urlsFile = flag.String("urls", "", "File with one product URL per line (overrides the built-in set)")
)

// Default URLs covering the main evidence kinds.
var defaultURLs = []target{
	{"JSON-LD", "https://www.ikea.com/us/en/p/billy-bookcase-white-00263850/"},
	{"Shopify", "https://www.allbirds.com/products/mens-tree-runners"},
	{"Microdata", "https://www.bestbuy.com/site/apple-airpods-4/6447384.p"},
	{"SPA", "https://www.noon.com/saudi-en/"},
	{"Static", "https://example.com"},
}

type target struct {
	Label string
	URL   string
}

// --- Response types (mirrors models package) ---

type extractResponse struct {
	Data struct {
		Name         *string  `json:"name"`
		Price        *float64 `json:"price"`
		Availability *string  `json:"availability"`
		Images       []string `json:"images"`
	} `json:"data"`
	Meta struct {
		Stage    string `json:"stage"`
		Source   string `json:"source"`
		Rendered bool   `json:"rendered"`
		Timing   struct {
			TotalMs   int64 `json:"total_ms"`
			AcquireMs int64 `json:"acquire_ms"`
			ExtractMs int64 `json:"extract_ms"`
		} `json:"timing"`
	} `json:"meta"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Benchmark result types ---

type runResult struct {
	Run        int    `json:"run"`
	HTTPStatus int    `json:"http_status"`
	TotalMs    int64  `json:"total_ms"`
	AcquireMs  int64  `json:"acquire_ms"`
	ExtractMs  int64  `json:"extract_ms"`
	Stage      string `json:"stage,omitempty"`
	Source     string `json:"source,omitempty"`
	Rendered   bool   `json:"rendered"`
	HasName    bool   `json:"has_name"`
	HasPrice   bool   `json:"has_price"`
	Images     int    `json:"images"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type urlAverages struct {
	TotalMs   float64 `json:"total_ms"`
	AcquireMs float64 `json:"acquire_ms"`
	ExtractMs float64 `json:"extract_ms"`
}

type urlResult struct {
	URL      string       `json:"url"`
	Label    string       `json:"label"`
	Runs     []runResult  `json:"runs"`
	Averages *urlAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	targets := defaultURLs
	if *urlsFile != "" {
		var err error
		if targets, err = readTargets(*urlsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *urlsFile, err)
			os.Exit(1)
		}
	}

	fmt.Println("=== prodex Benchmark Suite ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure prodex is running (prodex serve)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}
	client := &http.Client{Timeout: 150 * time.Second}

	for _, t := range targets {
		fmt.Printf("Benchmarking [%s] %s ...\n", t.Label, t.URL)
		ur := urlResult{URL: t.URL, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(client, t.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  stage=%s rendered=%t\n", rr.TotalMs, rr.Stage, rr.Rendered)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Averages = computeAverages(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func readTargets(path string) ([]target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []target
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		label := line
		if u, err := url.Parse(line); err == nil && u.Host != "" {
			label = u.Host
		}
		out = append(out, target{Label: label, URL: line})
	}
	return out, sc.Err()
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(client *http.Client, target string, run int) runResult {
	rr := runResult{Run: run}

	endpoint := *apiURL + "/api/v1/extract?" + url.Values{"url": {target}}.Encode()
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.HTTPStatus = resp.StatusCode

	var er extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	if resp.StatusCode != http.StatusOK {
		rr.Error = fmt.Sprintf("[%s] %s", er.Code, er.Error)
		return rr
	}

	rr.Success = true
	rr.TotalMs = er.Meta.Timing.TotalMs
	rr.AcquireMs = er.Meta.Timing.AcquireMs
	rr.ExtractMs = er.Meta.Timing.ExtractMs
	rr.Stage = er.Meta.Stage
	rr.Source = er.Meta.Source
	rr.Rendered = er.Meta.Rendered
	rr.HasName = er.Data.Name != nil
	rr.HasPrice = er.Data.Price != nil
	rr.Images = len(er.Data.Images)
	return rr
}

func computeAverages(runs []runResult) *urlAverages {
	var successCount int
	var avg urlAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.AcquireMs += float64(r.AcquireMs)
		avg.ExtractMs += float64(r.ExtractMs)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.AcquireMs /= n
	avg.ExtractMs /= n
	return &avg
}

func printTable(results []urlResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"URL", "Avg Latency", "Acquire", "Stage", "Rendered", "Name", "Price"})

	for _, r := range results {
		if r.Averages == nil {
			t.AppendRow(table.Row{truncateURL(r.URL, 40), "FAILED", "-", "-", "-", "-", "-"})
			continue
		}
		last := lastSuccess(r.Runs)
		t.AppendRow(table.Row{
			truncateURL(r.URL, 40),
			fmt.Sprintf("%dms", int64(r.Averages.TotalMs)),
			fmt.Sprintf("%dms", int64(r.Averages.AcquireMs)),
			stageLabel(last),
			last.Rendered,
			last.HasName,
			last.HasPrice,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func lastSuccess(runs []runResult) runResult {
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].Success {
			return runs[i]
		}
	}
	return runResult{}
}

func stageLabel(r runResult) string {
	if r.Source == "" {
		return r.Stage
	}
	return r.Stage + "/" + r.Source
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
