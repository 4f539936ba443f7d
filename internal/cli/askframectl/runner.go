package askframectl

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/askframe/askframe/internal/render"
	"github.com/askframe/askframe/internal/storage"
	"github.com/askframe/askframe/internal/table"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askframectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "askframe API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 90s)")
	objectKey := fs.Bool("object", false, "treat <file> as an object-store key instead of a local path")
	format := fs.String("format", "text", "output format for ask/preview/query: text or json")
	figureDir := fs.String("figure-dir", "", "directory for figures returned by ask (default: temp dir)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if *format != "text" && *format != "json" {
		_, _ = fmt.Fprintf(stderr, "unknown format %q\n", *format)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	var req *request
	var err error
	switch command {
	case "health":
		req = &request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = &request{method: http.MethodGet, path: "/v1/ready"}
	case "preview":
		req, err = datasetRequest("/v1/preview", fs.Args()[1:], 1, *objectKey, "")
	case "ask":
		req, err = datasetRequest("/v1/ask", fs.Args()[1:], 2, *objectKey, "question")
	case "query":
		req, err = datasetRequest("/v1/query", fs.Args()[1:], 2, *objectKey, "sql")
	case "datasets":
		req, err = listRequest(fs.Args()[1:])
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, endpoint, *apiKey, req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		if *format == "text" && writeFailure(stderr, code, responseBody) {
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if *format == "text" {
		switch command {
		case "ask":
			if err := writeAnswer(stdout, responseBody, *figureDir); err != nil {
				_, _ = fmt.Fprintf(stderr, "render answer: %v\n", err)
				return 1
			}
			return 0
		case "preview", "query":
			if writeTable(stdout, responseBody) {
				return 0
			}
		case "datasets":
			if writeDatasets(stdout, responseBody) {
				return 0
			}
		}
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

type request struct {
	method      string
	path        string
	contentType string
	body        []byte
}

// datasetRequest builds a multipart upload of a local file, or a JSON body
// naming an object key. field names the form field the second argument fills.
func datasetRequest(path string, args []string, want int, objectKey bool, field string) (*request, error) {
	if len(args) != want {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", strings.TrimPrefix(path, "/v1/"), want, len(args))
	}
	source := args[0]
	fields := map[string]string{}
	if field != "" {
		fields[field] = args[1]
	}

	if objectKey {
		fields["object_key"] = source
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		return &request{method: http.MethodPost, path: path, contentType: "application/json", body: body}, nil
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(source))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return &request{method: http.MethodPost, path: path, contentType: writer.FormDataContentType(), body: body.Bytes()}, nil
}

func listRequest(args []string) (*request, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("datasets expects at most 1 argument, got %d", len(args))
	}
	path := "/v1/datasets"
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		path += "?prefix=" + url.QueryEscape(args[0])
	}
	return &request{method: http.MethodGet, path: path}, nil
}

func doRequest(ctx context.Context, client *http.Client, url, apiKey string, r *request) (int, []byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

type answer struct {
	Code    string           `json:"code"`
	Outputs []render.Payload `json:"outputs"`
}

// writeAnswer prints an /v1/ask response the way the local CLI does, writing
// figures to files.
func writeAnswer(w io.Writer, raw []byte, figureDir string) error {
	var resp answer
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	report := render.Report{Outputs: make([]render.Output, 0, len(resp.Outputs))}
	for _, payload := range resp.Outputs {
		output := render.Output{Kind: payload.Kind, Title: payload.Title, Text: payload.Text, TotalRows: payload.TotalRows, Value: payload.Value}
		switch payload.Kind {
		case render.KindTable:
			output.Table = payloadTable(payload.Columns, payload.Rows)
		case render.KindFigure:
			png, err := base64.StdEncoding.DecodeString(payload.ImagePNG)
			if err != nil {
				return fmt.Errorf("decode figure: %w", err)
			}
			output.Figure = png
		}
		report.Outputs = append(report.Outputs, output)
	}

	terminal := render.NewTerminal(w, figureDir)
	terminal.RenderCode(resp.Code)
	_, err := terminal.Render(report)
	return err
}

func writeTable(w io.Writer, raw []byte) bool {
	var resp struct {
		Columns   []render.PayloadColumn `json:"columns"`
		Rows      [][]any                `json:"rows"`
		TotalRows int                    `json:"total_rows"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Columns == nil {
		return false
	}
	_, _ = fmt.Fprintln(w, render.TableString(payloadTable(resp.Columns, resp.Rows)))
	if resp.TotalRows > len(resp.Rows) {
		_, _ = fmt.Fprintf(w, "showing %d of %d rows\n", len(resp.Rows), resp.TotalRows)
	}
	return true
}

func writeDatasets(w io.Writer, raw []byte) bool {
	var resp struct {
		Datasets []storage.DatasetObject `json:"datasets"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Datasets == nil {
		return false
	}
	if len(resp.Datasets) == 0 {
		_, _ = fmt.Fprintln(w, "no datasets found")
		return true
	}
	keys := make([]any, len(resp.Datasets))
	sizes := make([]any, len(resp.Datasets))
	modified := make([]any, len(resp.Datasets))
	for i, object := range resp.Datasets {
		keys[i] = object.Key
		sizes[i] = object.Size
		modified[i] = object.LastModified
	}
	_, _ = fmt.Fprintln(w, render.TableString(&table.Table{Columns: []table.Column{
		{Name: "key", Type: table.TypeString, Values: keys},
		{Name: "size", Type: table.TypeInt, Values: sizes},
		{Name: "last_modified", Type: table.TypeTime, Values: modified},
	}}))
	return true
}

func writeFailure(w io.Writer, status int, raw []byte) bool {
	var resp struct {
		ErrorCode string         `json:"error_code"`
		Message   string         `json:"message"`
		Context   map[string]any `json:"context"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ErrorCode == "" {
		return false
	}
	stage, _ := resp.Context["stage"].(string)
	kind, _ := resp.Context["kind"].(string)
	trace, _ := resp.Context["trace"].(string)
	if stage == "" {
		_, _ = fmt.Fprintf(w, "http %d %s: %s\n", status, resp.ErrorCode, resp.Message)
		return true
	}
	render.NewTerminal(w, "").RenderFailure(stage, kind, resp.Message, trace)
	return true
}

func payloadTable(columns []render.PayloadColumn, rows [][]any) *table.Table {
	tbl := &table.Table{Columns: make([]table.Column, len(columns))}
	for c, column := range columns {
		values := make([]any, len(rows))
		for r, row := range rows {
			if c < len(row) {
				values[r] = row[c]
			}
		}
		tbl.Columns[c] = table.Column{Name: column.Name, Type: table.Type(column.Type), Values: values}
	}
	return tbl
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: askframectl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                   GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                    GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  preview <file>           POST /v1/preview")
	_, _ = fmt.Fprintln(w, "  ask <file> <question>    POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  query <file> <sql>       POST /v1/query (dataset is table df)")
	_, _ = fmt.Fprintln(w, "  datasets [prefix]        GET /v1/datasets")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "with -object, <file> is an object-store key")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
