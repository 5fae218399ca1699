package flow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestAPI(t *testing.T, b Backend, runDir string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	project := &Project{
		Designs: []Design{validDesign()},
		Flows: map[string]map[string]any{
			"fake": {"part": "testpart", "run_dir": runDir, "strategy": "Default"},
		},
	}
	g := gin.New()
	NewHTTPHandler(discardLogger(), project, testRegistry(b), g)
	return g
}

func TestHTTPListBackends(t *testing.T) {
	g := newTestAPI(t, newFakeBackend("exit 0\n"), t.TempDir())

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backends", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Backends []string `json:"backends"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Backends) != 1 || body.Backends[0] != "fake" {
		t.Errorf("backends = %v", body.Backends)
	}
}

func TestHTTPListParts(t *testing.T) {
	g := newTestAPI(t, newFakeBackend("exit 0\n"), t.TempDir())

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backends/fake/parts", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "testpart") {
		t.Errorf("body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/backends/nope/parts", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown backend status = %d, want 404", w.Code)
	}
}

func TestHTTPRunFlow(t *testing.T) {
	b := newFakeBackend("exit 0\n")
	b.metrics = Metrics{TimingSlackNs: Float64Ptr(0.8)}
	g := newTestAPI(t, b, t.TempDir())

	req := httptest.NewRequest(http.MethodPost, "/runs",
		strings.NewReader(`{"design": "counter", "backend": "fake"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Design  string  `json:"design"`
		Verdict Verdict `json:"verdict"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Design != "counter" || body.Verdict.Outcome != OutcomeSuccess {
		t.Errorf("body = %+v", body)
	}
}

func TestHTTPRunFlowErrors(t *testing.T) {
	b := newFakeBackend("exit 139\n")
	g := newTestAPI(t, b, t.TempDir())

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		g.ServeHTTP(w, req)
		return w
	}

	// Missing required fields.
	if w := post(`{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", w.Code)
	}
	// Unknown design.
	if w := post(`{"design": "nope", "backend": "fake"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown design status = %d, want 400", w.Code)
	}
	// Unknown strategy.
	if w := post(`{"design": "counter", "backend": "fake", "strategy": "Fastest"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown strategy status = %d, want 400", w.Code)
	}
	// Backend crash is a gateway-style failure, not a client error.
	if w := post(`{"design": "counter", "backend": "fake"}`); w.Code != http.StatusBadGateway {
		t.Errorf("tool error status = %d, want 502", w.Code)
	}
}

func TestHTTPRunFlowOptionOverride(t *testing.T) {
	b := newFakeBackend("exit 0\n")
	b.metrics = Metrics{TimingSlackNs: Float64Ptr(-0.05)}
	g := newTestAPI(t, b, t.TempDir())

	// Request-level options override project flow settings.
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(
		`{"design": "counter", "backend": "fake", "options": {"fail_on_timing": false}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), string(OutcomeSuccess)) {
		t.Errorf("lenient override ignored: %s", w.Body.String())
	}
}
