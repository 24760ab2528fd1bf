package servicenow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/provisor-ai/deskbot/internal/platform"
)

const (
	catalogItemTable = "sc_cat_item"
	variableTable    = "item_option_new"
	choiceTable      = "question_choice"
	categoryTable    = "sc_category"
	catalogTable     = "sc_catalog"
)

// VariableTypes the catalog variable agents may create, mapped to the
// platform's numeric type codes.
var VariableTypes = map[string]string{
	"string":          "6",
	"boolean":         "7",
	"multiple_choice": "3",
	"date":            "9",
}

type Config struct {
	InstanceURL string
	Username    string
	Password    string
	Timeout     time.Duration
}

// Client is a thin table-API client. Every operation returns a platform
// Result; the orchestration core only reads Success.
type Client struct {
	config Config
	http   *http.Client

	// Resolved name->sys_id pairs; reference resolution is by far the most
	// repeated call during a variables session.
	refs *lru.Cache[string, string]
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.InstanceURL) == "" {
		return nil, fmt.Errorf("servicenow instance URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	refs, err := lru.New[string, string](256)
	if err != nil {
		return nil, fmt.Errorf("reference cache: %w", err)
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		refs:   refs,
	}, nil
}

// IsSysID reports whether identifier already looks like a table sys_id:
// exactly 32 alphanumeric characters.
func IsSysID(identifier string) bool {
	if len(identifier) != 32 {
		return false
	}
	for _, r := range identifier {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// ResolveReference turns a catalog item name or sys_id into a sys_id. Names
// are looked up by exact match first, then by contains-search, and cached.
func (c *Client) ResolveReference(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", fmt.Errorf("empty catalog item reference")
	}
	if IsSysID(identifier) {
		return identifier, nil
	}
	if sysID, ok := c.refs.Get(identifier); ok {
		return sysID, nil
	}

	for _, query := range []string{
		"name=" + identifier,
		"nameLIKE" + identifier,
	} {
		records, err := c.queryTable(ctx, catalogItemTable, query, 1)
		if err != nil {
			return "", err
		}
		if len(records) > 0 {
			sysID := stringField(records[0], "sys_id")
			if sysID != "" {
				c.refs.Add(identifier, sysID)
				return sysID, nil
			}
		}
	}
	return "", fmt.Errorf("no catalog item matching %q", identifier)
}

type Variable struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	Type         string   `json:"type"`
	DefaultValue string   `json:"default_value,omitempty"`
	Required     bool     `json:"required"`
	HelpText     string   `json:"help_text,omitempty"`
	Choices      []string `json:"choices,omitempty"`
}

func (c *Client) CreateCatalogItem(ctx context.Context, name, description, category, catalogType string) platform.Result {
	body := map[string]any{
		"name":              name,
		"short_description": description,
		"category":          category,
		"sys_class_name":    catalogItemTable,
	}
	if catalogType != "" {
		body["sc_catalogs"] = catalogType
	}
	record, err := c.insert(ctx, catalogItemTable, body)
	if err != nil {
		return platform.Fail("create catalog item: %v", err)
	}
	return platform.OK(map[string]any{
		"sys_id": stringField(record, "sys_id"),
		"name":   stringField(record, "name"),
	})
}

func (c *Client) GetCatalogItem(ctx context.Context, identifier string) platform.Result {
	sysID, err := c.ResolveReference(ctx, identifier)
	if err != nil {
		return platform.Fail("resolve catalog item: %v", err)
	}
	record, err := c.getRecord(ctx, catalogItemTable, sysID)
	if err != nil {
		return platform.Fail("get catalog item: %v", err)
	}
	variables, err := c.queryTable(ctx, variableTable, "cat_item="+sysID, 50)
	if err == nil {
		record["variables"] = summarizeVariables(variables)
	}
	return platform.OK(record)
}

func (c *Client) SearchCatalogItems(ctx context.Context, query string, limit int) platform.Result {
	if limit <= 0 {
		limit = 10
	}
	records, err := c.queryTable(ctx, catalogItemTable, "nameLIKE"+query, limit)
	if err != nil {
		return platform.Fail("search catalog items: %v", err)
	}
	return platform.OK(map[string]any{"items": summarizeItems(records), "count": len(records)})
}

func (c *Client) ListCatalogItems(ctx context.Context, limit int) platform.Result {
	if limit <= 0 {
		limit = 20
	}
	records, err := c.queryTable(ctx, catalogItemTable, "active=true", limit)
	if err != nil {
		return platform.Fail("list catalog items: %v", err)
	}
	return platform.OK(map[string]any{"items": summarizeItems(records), "count": len(records)})
}

func (c *Client) PublishCatalogItem(ctx context.Context, identifier string) platform.Result {
	sysID, err := c.ResolveReference(ctx, identifier)
	if err != nil {
		return platform.Fail("resolve catalog item: %v", err)
	}
	_, err = c.update(ctx, catalogItemTable, sysID, map[string]any{"active": "true"})
	if err != nil {
		return platform.Fail("publish catalog item: %v", err)
	}
	return platform.OK(map[string]any{"sys_id": sysID, "published": true})
}

func (c *Client) Categories(ctx context.Context) platform.Result {
	records, err := c.queryTable(ctx, categoryTable, "active=true", 50)
	if err != nil {
		return platform.Fail("list categories: %v", err)
	}
	names := make([]any, 0, len(records))
	for _, r := range records {
		names = append(names, map[string]any{
			"sys_id": stringField(r, "sys_id"),
			"title":  stringField(r, "title"),
		})
	}
	return platform.OK(map[string]any{"categories": names})
}

func (c *Client) CatalogTypes(ctx context.Context) platform.Result {
	records, err := c.queryTable(ctx, catalogTable, "active=true", 20)
	if err != nil {
		return platform.Fail("list catalog types: %v", err)
	}
	names := make([]any, 0, len(records))
	for _, r := range records {
		names = append(names, map[string]any{
			"sys_id": stringField(r, "sys_id"),
			"title":  stringField(r, "title"),
		})
	}
	return platform.OK(map[string]any{"catalogs": names})
}

// AddVariable creates one variable on a catalog item, plus its choices when
// the type is multiple_choice.
func (c *Client) AddVariable(ctx context.Context, identifier string, v Variable) platform.Result {
	typeCode, ok := VariableTypes[v.Type]
	if !ok {
		return platform.Fail("unsupported variable type %q", v.Type)
	}
	sysID, err := c.ResolveReference(ctx, identifier)
	if err != nil {
		return platform.Fail("resolve catalog item: %v", err)
	}
	body := map[string]any{
		"cat_item":      sysID,
		"name":          v.Name,
		"question_text": v.Label,
		"type":          typeCode,
		"mandatory":     fmt.Sprintf("%t", v.Required),
	}
	if v.DefaultValue != "" {
		body["default_value"] = v.DefaultValue
	}
	if v.HelpText != "" {
		body["help_text"] = v.HelpText
	}
	record, err := c.insert(ctx, variableTable, body)
	if err != nil {
		return platform.Fail("create variable: %v", err)
	}
	variableID := stringField(record, "sys_id")

	created := 0
	if v.Type == "multiple_choice" {
		for i, choice := range v.Choices {
			_, err := c.insert(ctx, choiceTable, map[string]any{
				"question": variableID,
				"text":     choice,
				"value":    choice,
				"order":    fmt.Sprintf("%d", (i+1)*100),
			})
			if err != nil {
				return platform.Fail("create choice %q: %v", choice, err)
			}
			created++
		}
	}
	return platform.OK(map[string]any{
		"sys_id":   variableID,
		"name":     v.Name,
		"type":     v.Type,
		"cat_item": sysID,
		"choices":  created,
	})
}

// AddVariables creates a batch of variables, reporting per-item outcomes. A
// failed item does not stop the rest.
func (c *Client) AddVariables(ctx context.Context, identifier string, vars []Variable) platform.Result {
	results := make([]any, 0, len(vars))
	failures := 0
	for _, v := range vars {
		r := c.AddVariable(ctx, identifier, v)
		if !r.Success {
			failures++
		}
		results = append(results, map[string]any{
			"name":    v.Name,
			"success": r.Success,
			"error":   r.Error,
		})
	}
	if failures == len(vars) && len(vars) > 0 {
		return platform.Fail("all %d variables failed", len(vars))
	}
	return platform.OK(map[string]any{
		"results":  results,
		"created":  len(vars) - failures,
		"failed":   failures,
		"total":    len(vars),
		"cat_item": identifier,
	})
}

func summarizeItems(records []map[string]any) []any {
	out := make([]any, 0, len(records))
	for _, r := range records {
		out = append(out, map[string]any{
			"sys_id":            stringField(r, "sys_id"),
			"name":              stringField(r, "name"),
			"short_description": stringField(r, "short_description"),
			"active":            stringField(r, "active"),
		})
	}
	return out
}

func summarizeVariables(records []map[string]any) []any {
	out := make([]any, 0, len(records))
	for _, r := range records {
		out = append(out, map[string]any{
			"sys_id":        stringField(r, "sys_id"),
			"name":          stringField(r, "name"),
			"question_text": stringField(r, "question_text"),
			"type":          stringField(r, "type"),
		})
	}
	return out
}

func stringField(record map[string]any, key string) string {
	if record == nil {
		return ""
	}
	if s, ok := record[key].(string); ok {
		return s
	}
	return ""
}

// --- table API plumbing ---

type tableResponse struct {
	Result json.RawMessage `json:"result"`
}

func (c *Client) insert(ctx context.Context, table string, body map[string]any) (map[string]any, error) {
	return c.doRecord(ctx, http.MethodPost, "/api/now/table/"+table, nil, body)
}

func (c *Client) update(ctx context.Context, table, sysID string, body map[string]any) (map[string]any, error) {
	return c.doRecord(ctx, http.MethodPatch, "/api/now/table/"+table+"/"+sysID, nil, body)
}

func (c *Client) getRecord(ctx context.Context, table, sysID string) (map[string]any, error) {
	return c.doRecord(ctx, http.MethodGet, "/api/now/table/"+table+"/"+sysID, nil, nil)
}

func (c *Client) queryTable(ctx context.Context, table, query string, limit int) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("sysparm_query", query)
	params.Set("sysparm_limit", fmt.Sprintf("%d", limit))
	raw, err := c.do(ctx, http.MethodGet, "/api/now/table/"+table, params, nil)
	if err != nil {
		return nil, err
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s records: %w", table, err)
	}
	return records, nil
}

func (c *Client) doRecord(ctx context.Context, method, path string, params url.Values, body map[string]any) (map[string]any, error) {
	raw, err := c.do(ctx, method, path, params, body)
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body map[string]any) (json.RawMessage, error) {
	endpoint := strings.TrimRight(c.config.InstanceURL, "/") + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("servicenow %s %s: status %d", method, path, resp.StatusCode)
	}

	var decoded tableResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded.Result, nil
}
