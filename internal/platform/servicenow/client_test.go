package servicenow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testSysID = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"

func TestIsSysID(t *testing.T) {
	cases := map[string]bool{
		testSysID:                     true,
		"Laptop Request":              false,
		"short":                       false,
		strings.Repeat("a", 32):       true,
		strings.Repeat("a", 31) + "-": false,
		strings.Repeat("a", 33):       false,
	}
	for input, want := range cases {
		if got := IsSysID(input); got != want {
			t.Errorf("IsSysID(%q) = %v, want %v", input, got, want)
		}
	}
}

// fakeInstance is a minimal table API. Each handler owns one table path.
func fakeInstance(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func respondResult(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{InstanceURL: baseURL, Username: "bot", Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestResolveReferencePassesSysIDThrough(t *testing.T) {
	client := newTestClient(t, "http://unused.invalid")
	got, err := client.ResolveReference(context.Background(), testSysID)
	if err != nil {
		t.Fatal(err)
	}
	if got != testSysID {
		t.Fatalf("sys_id should pass through unchanged, got %q", got)
	}
}

func TestResolveReferenceByNameAndCache(t *testing.T) {
	lookups := 0
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/sc_cat_item": func(w http.ResponseWriter, r *http.Request) {
			lookups++
			if got := r.URL.Query().Get("sysparm_query"); got != "name=Laptop Request" {
				t.Errorf("unexpected query: %q", got)
			}
			respondResult(w, []map[string]any{{"sys_id": testSysID, "name": "Laptop Request"}})
		},
	})
	client := newTestClient(t, server.URL)

	for i := 0; i < 2; i++ {
		got, err := client.ResolveReference(context.Background(), "Laptop Request")
		if err != nil {
			t.Fatal(err)
		}
		if got != testSysID {
			t.Fatalf("resolved %q, want %q", got, testSysID)
		}
	}
	if lookups != 1 {
		t.Fatalf("second resolution should hit the cache, saw %d lookups", lookups)
	}
}

func TestResolveReferenceFallsBackToContains(t *testing.T) {
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/sc_cat_item": func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query().Get("sysparm_query")
			if strings.HasPrefix(query, "name=") {
				respondResult(w, []map[string]any{})
				return
			}
			if query != "nameLIKELaptop" {
				t.Errorf("unexpected fallback query: %q", query)
			}
			respondResult(w, []map[string]any{{"sys_id": testSysID}})
		},
	})
	client := newTestClient(t, server.URL)

	got, err := client.ResolveReference(context.Background(), "Laptop")
	if err != nil {
		t.Fatal(err)
	}
	if got != testSysID {
		t.Fatalf("resolved %q, want %q", got, testSysID)
	}
}

func TestCreateCatalogItem(t *testing.T) {
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/sc_cat_item": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			user, pass, _ := r.BasicAuth()
			if user != "bot" || pass != "secret" {
				t.Error("basic auth credentials not forwarded")
			}
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["name"] != "New Laptop" || body["short_description"] != "Order a laptop" {
				t.Errorf("unexpected body: %v", body)
			}
			respondResult(w, map[string]any{"sys_id": testSysID, "name": "New Laptop"})
		},
	})
	client := newTestClient(t, server.URL)

	result := client.CreateCatalogItem(context.Background(), "New Laptop", "Order a laptop", "Hardware", "")
	if !result.Success {
		t.Fatalf("create failed: %s", result.Error)
	}
	if result.Data["sys_id"] != testSysID {
		t.Fatalf("unexpected data: %v", result.Data)
	}
}

func TestPublishCatalogItem(t *testing.T) {
	var patched map[string]any
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/sc_cat_item/" + testSysID: func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPatch {
				t.Errorf("expected PATCH, got %s", r.Method)
			}
			_ = json.NewDecoder(r.Body).Decode(&patched)
			respondResult(w, map[string]any{"sys_id": testSysID})
		},
	})
	client := newTestClient(t, server.URL)

	result := client.PublishCatalogItem(context.Background(), testSysID)
	if !result.Success {
		t.Fatalf("publish failed: %s", result.Error)
	}
	if patched["active"] != "true" {
		t.Fatalf("publish should set active=true, got %v", patched)
	}
}

func TestAddVariableCreatesChoices(t *testing.T) {
	variableID := strings.Repeat("b", 32)
	var choices []map[string]any
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/item_option_new": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["type"] != "3" {
				t.Errorf("multiple_choice should map to type 3, got %v", body["type"])
			}
			if body["cat_item"] != testSysID {
				t.Errorf("variable not attached to item: %v", body)
			}
			respondResult(w, map[string]any{"sys_id": variableID})
		},
		"/api/now/table/question_choice": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			choices = append(choices, body)
			respondResult(w, map[string]any{"sys_id": strings.Repeat("c", 32)})
		},
	})
	client := newTestClient(t, server.URL)

	result := client.AddVariable(context.Background(), testSysID, Variable{
		Name:    "size",
		Label:   "Which size?",
		Type:    "multiple_choice",
		Choices: []string{"small", "large"},
	})
	if !result.Success {
		t.Fatalf("add variable failed: %s", result.Error)
	}
	if len(choices) != 2 {
		t.Fatalf("expected 2 choices created, got %d", len(choices))
	}
	if choices[0]["question"] != variableID || choices[0]["text"] != "small" {
		t.Fatalf("unexpected first choice: %v", choices[0])
	}
	if choices[1]["order"] != "200" {
		t.Fatalf("choices should be ordered in hundreds, got %v", choices[1]["order"])
	}
}

func TestAddVariableRejectsUnknownType(t *testing.T) {
	client := newTestClient(t, "http://unused.invalid")
	result := client.AddVariable(context.Background(), testSysID, Variable{Name: "x", Label: "X", Type: "slider"})
	if result.Success {
		t.Fatal("unknown variable type should fail")
	}
	if !strings.Contains(result.Error, "slider") {
		t.Fatalf("error should name the type: %q", result.Error)
	}
}

func TestAddVariablesReportsPartialFailure(t *testing.T) {
	calls := 0
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/item_option_new": func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			respondResult(w, map[string]any{"sys_id": strings.Repeat("d", 32)})
		},
	})
	client := newTestClient(t, server.URL)

	result := client.AddVariables(context.Background(), testSysID, []Variable{
		{Name: "broken", Label: "Broken", Type: "string"},
		{Name: "fine", Label: "Fine", Type: "string"},
	})
	if !result.Success {
		t.Fatalf("partial failure should still succeed overall: %s", result.Error)
	}
	if result.Data["created"] != 1 || result.Data["failed"] != 1 {
		t.Fatalf("unexpected counts: %v", result.Data)
	}
}

func TestAddVariablesAllFailed(t *testing.T) {
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/item_option_new": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	client := newTestClient(t, server.URL)

	result := client.AddVariables(context.Background(), testSysID, []Variable{
		{Name: "a", Label: "A", Type: "string"},
		{Name: "b", Label: "B", Type: "string"},
	})
	if result.Success {
		t.Fatal("all-failed batch should report failure")
	}
}

func TestSearchCatalogItems(t *testing.T) {
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/sc_cat_item": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("sysparm_query"); got != "nameLIKElaptop" {
				t.Errorf("unexpected query: %q", got)
			}
			respondResult(w, []map[string]any{
				{"sys_id": testSysID, "name": "Laptop Request", "active": "true"},
			})
		},
	})
	client := newTestClient(t, server.URL)

	result := client.SearchCatalogItems(context.Background(), "laptop", 0)
	if !result.Success {
		t.Fatalf("search failed: %s", result.Error)
	}
	if result.Data["count"] != 1 {
		t.Fatalf("unexpected count: %v", result.Data)
	}
}

func TestServerErrorSurfacesAsFailure(t *testing.T) {
	server := fakeInstance(t, map[string]http.HandlerFunc{
		"/api/now/table/sc_category": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
	})
	client := newTestClient(t, server.URL)

	result := client.Categories(context.Background())
	if result.Success {
		t.Fatal("HTTP error should fail the operation")
	}
	if !strings.Contains(result.Error, "403") {
		t.Fatalf("error should carry the status: %q", result.Error)
	}
}
