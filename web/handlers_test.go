package web_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kamostudio/restack/adapters/clock"
	"github.com/kamostudio/restack/adapters/idgen"
	"github.com/kamostudio/restack/adapters/memory"
	"github.com/kamostudio/restack/app"
	"github.com/kamostudio/restack/web"
)

const triviaDefinition = `
name: trivia
resources:
  person:
    schema:
      type: object
      properties:
        firstName:
          type: string
        lastName:
          type: string
      required: [firstName, lastName]
    history: true
    views:
      fullName:
        remap:
          name: "{firstName} {lastName}"
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "trivia.yaml"), []byte(triviaDefinition), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}

	registry, err := app.NewRegistry(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })

	engine := app.NewEngine(app.EngineDeps{
		Types:  registry,
		Store:  memory.NewResourceStore(),
		Clock:  clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		IDs:    idgen.NewSequential("ver_"),
		Logger: zerolog.Nop(),
	})

	srv := httptest.NewServer(web.New(engine, zerolog.Nop()).Routes(false))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func createPerson(t *testing.T, srv *httptest.Server, first, last string) float64 {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/apps/trivia/resources/person", map[string]any{
		"firstName": first,
		"lastName":  last,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body = %v", resp.StatusCode, body)
	}
	id, ok := body["id"].(float64)
	if !ok {
		t.Fatalf("create response id = %v", body["id"])
	}
	return id
}

func TestHandler_CreateAndGet(t *testing.T) {
	srv := newTestServer(t)

	id := createPerson(t, srv, "Spongebob", "Squarepants")

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/apps/trivia/resources/person/%v", srv.URL, id), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if body["firstName"] != "Spongebob" || body["lastName"] != "Squarepants" {
		t.Errorf("body = %v", body)
	}
	if body["$created"] != "2024-06-01T12:00:00Z" {
		t.Errorf("$created = %v", body["$created"])
	}
}

func TestHandler_Query(t *testing.T) {
	srv := newTestServer(t)
	createPerson(t, srv, "Patrick", "Star")
	createPerson(t, srv, "Sandy", "Cheeks")

	resp, err := http.Get(srv.URL + "/api/apps/trivia/resources/person")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var list []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len = %d, want 2", len(list))
	}
}

func TestHandler_QueryWithView(t *testing.T) {
	srv := newTestServer(t)
	createPerson(t, srv, "Spongebob", "Squarepants")

	resp, err := http.Get(srv.URL + "/api/apps/trivia/resources/person?view=fullName")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer resp.Body.Close()

	var list []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0]["name"] != "Spongebob Squarepants" {
		t.Errorf("list = %v", list)
	}
}

func TestHandler_UnknownView(t *testing.T) {
	srv := newTestServer(t)
	createPerson(t, srv, "Spongebob", "Squarepants")

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/apps/trivia/resources/person?view=nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_GetNotFound(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/apps/trivia/resources/person/99", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_TypeNotDeclared(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/apps/trivia/resources/dragon/1", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_CreateValidationError(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/apps/trivia/resources/person", map[string]any{
		"firstName": "Plankton",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errs, ok := body["errors"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v, want errors map", body)
	}
	if _, ok := errs["lastName"]; !ok {
		t.Errorf("errors = %v, want lastName entry", errs)
	}
}

func TestHandler_CreateInvalidJSON(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/apps/trivia/resources/person", "application/json", bytes.NewBufferString("{nope"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandler_Patch(t *testing.T) {
	srv := newTestServer(t)
	id := createPerson(t, srv, "Spongebob", "Squarepants")

	url := fmt.Sprintf("%s/api/apps/trivia/resources/person/%v", srv.URL, id)
	resp, body := doJSON(t, http.MethodPatch, url, map[string]any{"firstName": "Squidward"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, body = %v", resp.StatusCode, body)
	}
	if body["firstName"] != "Squidward" || body["lastName"] != "Squarepants" {
		t.Errorf("body = %v, want partial update merged", body)
	}
}

func TestHandler_UpdateValidation(t *testing.T) {
	srv := newTestServer(t)
	id := createPerson(t, srv, "Spongebob", "Squarepants")

	url := fmt.Sprintf("%s/api/apps/trivia/resources/person/%v", srv.URL, id)
	resp, _ := doJSON(t, http.MethodPut, url, map[string]any{"firstName": "Squidward"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("put without full payload status = %d, want 400", resp.StatusCode)
	}
}

func TestHandler_Delete(t *testing.T) {
	srv := newTestServer(t)
	id := createPerson(t, srv, "Spongebob", "Squarepants")

	url := fmt.Sprintf("%s/api/apps/trivia/resources/person/%v", srv.URL, id)
	resp, _ := doJSON(t, http.MethodDelete, url, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, url, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_Versions(t *testing.T) {
	srv := newTestServer(t)
	id := createPerson(t, srv, "Spongebob", "Squarepants")

	url := fmt.Sprintf("%s/api/apps/trivia/resources/person/%v", srv.URL, id)
	resp, _ := doJSON(t, http.MethodPatch, url, map[string]any{"firstName": "Squidward"},
		map[string]string{web.PrincipalHeader: "editor-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", resp.StatusCode)
	}

	vresp, err := http.Get(url + "/versions")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	defer vresp.Body.Close()
	if vresp.StatusCode != http.StatusOK {
		t.Fatalf("versions status = %d", vresp.StatusCode)
	}

	var versions []map[string]any
	if err := json.NewDecoder(vresp.Body).Decode(&versions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("versions = %d, want 1", len(versions))
	}
	data, _ := versions[0]["data"].(map[string]any)
	if data["firstName"] != "Spongebob" {
		t.Errorf("version data = %v, want prior snapshot", data)
	}
	if versions[0]["$editor"] != "editor-1" {
		t.Errorf("$editor = %v, want editor-1", versions[0]["$editor"])
	}
}

func TestHandler_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}
