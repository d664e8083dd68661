package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"verifiedid/issuer/internal/config"
	"verifiedid/issuer/internal/handler/middleware"
	"verifiedid/issuer/internal/model"
	"verifiedid/issuer/internal/repository"
	"verifiedid/issuer/internal/service"
	"verifiedid/issuer/internal/upstream"
)

const testAPIKey = "callback-secret"

type staticTokens struct{ err error }

func (s staticTokens) Token(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "bearer-token", nil
}

type staticDownloader struct {
	token string
	err   error
}

func (d staticDownloader) Download(context.Context, string) (string, error) { return d.token, d.err }

type testEnv struct {
	router   *gin.Engine
	received chan model.IssuanceRequest
}

type envOptions struct {
	tokens     service.TokenProvider
	downloader service.ManifestDownloader
	baseURL    string
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	received := make(chan model.IssuanceRequest, 8)
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload model.IssuanceRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		received <- payload
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"requestId":"req-1","url":"openid-vc://?request_uri=x","expiry":1700000000}`))
	}))
	t.Cleanup(upstreamSrv.Close)

	if opts.tokens == nil {
		opts.tokens = staticTokens{}
	}
	if opts.downloader == nil {
		opts.downloader = staticDownloader{token: "e30." + "eyJpZCI6ImFiYyJ9" + ".c2ln"}
	}

	logger := zap.NewNop()
	store := repository.NewMemoryStateStore(100)
	sessions := service.NewSessionService(store, 15*time.Minute, logger)
	template, err := service.LoadRequestTemplate(config.IssuanceConfig{
		IssuerAuthority:    "did:web:issuer.example",
		CredentialManifest: "https://manifest.example/m",
		CredentialType:     "SnoopfishCommunityMember",
		ClientName:         "Issuer",
		PinLength:          4,
		IncludeQRCode:      true,
	})
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	issuance := service.NewIssuanceService(template, testAPIKey, sessions, opts.tokens,
		upstream.NewIssuanceClient(upstreamSrv.URL, upstreamSrv.Client()), logger)
	manifests := service.NewManifestService(store, opts.downloader, "https://manifest.example/m", 15*time.Minute, logger)

	cfg := &config.Config{Server: config.ServerConfig{Mode: "test"}}
	router := SetupRouter(cfg, logger, service.NewCallbackAuthenticator(testAPIKey),
		NewIssuerHandler(issuance, sessions, manifests, opts.baseURL, logger))
	return &testEnv{router: router, received: received}
}

func (e *testEnv) do(method, target, body string, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Host = "issuer.test"
	for k, v := range header {
		req.Header.Set(k, v[0])
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, userAgent string) map[string]any {
	t.Helper()
	w := e.do(http.MethodGet, "/api/issuer/issuance-request", "", http.Header{"User-Agent": {userAgent}})
	if w.Code != http.StatusOK {
		t.Fatalf("create: status %d body %s", w.Code, w.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return out
}

func (e *testEnv) callback(state, status, extra, apiKey string) *httptest.ResponseRecorder {
	body := `{"requestId":"req-1","requestStatus":"` + status + `","state":"` + state + `"` + extra + `}`
	header := http.Header{}
	if apiKey != "" {
		header.Set(middleware.HeaderAPIKey, apiKey)
	}
	return e.do(http.MethodPost, "/api/issuer/issue-request-callback", body, header)
}

func (e *testEnv) poll(t *testing.T, id string) (int, model.IssuanceSession) {
	t.Helper()
	w := e.do(http.MethodGet, "/api/issuer/issuance-response?id="+id, "", nil)
	var session model.IssuanceSession
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
			t.Fatalf("decode poll response: %v", err)
		}
	}
	return w.Code, session
}

func TestCreateIssuance_ThenPollShowsCreated(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	out := env.create(t, "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6)")

	id, _ := out["id"].(string)
	if id == "" || out["requestId"] != "req-1" {
		t.Fatalf("unexpected create response %v", out)
	}
	if pin, _ := out["pin"].(string); len(pin) != 4 {
		t.Fatalf("expected a 4 digit pin for desktop, got %v", out["pin"])
	}

	sent := <-env.received
	if sent.Callback.URL != "https://issuer.test/api/issuer/issue-request-callback" {
		t.Fatalf("expected callback url from request host, got %q", sent.Callback.URL)
	}
	if sent.Callback.State != id || sent.Callback.Headers["api-key"] != testAPIKey {
		t.Fatalf("unexpected callback block %+v", sent.Callback)
	}

	code, session := env.poll(t, id)
	if code != http.StatusOK || session.Status != model.StatusRequestCreated {
		t.Fatalf("expected request_created, got %d %+v", code, session)
	}
}

func TestCreateIssuance_ConfiguredBaseURL(t *testing.T) {
	env := newTestEnv(t, envOptions{baseURL: "https://public.example"})
	env.create(t, "curl/8.0")
	if sent := <-env.received; sent.Callback.URL != "https://public.example/api/issuer/issue-request-callback" {
		t.Fatalf("unexpected callback url %q", sent.Callback.URL)
	}
}

func TestCreateIssuance_ConfiguredBaseURLIgnoresHost(t *testing.T) {
	env := newTestEnv(t, envOptions{baseURL: "https://public.example/"})
	req := httptest.NewRequest(http.MethodGet, "/api/issuer/issuance-request", nil)
	req.Host = "attacker.example"
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if sent := <-env.received; !strings.HasPrefix(sent.Callback.URL, "https://public.example/") {
		t.Fatalf("callback url must not follow the Host header, got %q", sent.Callback.URL)
	}
}

func TestCreateIssuance_MobileHasNoPin(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	out := env.create(t, "Mozilla/5.0 (Linux; Android 14; Pixel 7)")
	if _, ok := out["pin"]; ok {
		t.Fatalf("mobile clients must not receive a pin")
	}
	if sent := <-env.received; sent.Pin != nil {
		t.Fatalf("mobile payload must not carry a pin block")
	}
}

func TestCreateIssuance_TokenFailureIsTechnicalError(t *testing.T) {
	env := newTestEnv(t, envOptions{tokens: staticTokens{err: errors.New("AADSTS7000215: invalid client secret")}})
	w := env.do(http.MethodGet, "/api/issuer/issuance-request", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "AADSTS") || !strings.Contains(w.Body.String(), "technical error") {
		t.Fatalf("expected a generic error body, got %s", w.Body.String())
	}
}

func TestCallback_WrongSecretDoesNotMutate(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.create(t, "curl/8.0")["id"].(string)

	for _, key := range []string{"wrong", ""} {
		w := env.callback(id, "request_retrieved", "", key)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("key %q: expected 401, got %d", key, w.Code)
		}
	}
	if _, session := env.poll(t, id); session.Status != model.StatusRequestCreated {
		t.Fatalf("rejected callback mutated the session: %+v", session)
	}
}

func TestCallback_UnknownStateIsNotCreated(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	w := env.callback("never-issued", "request_retrieved", "", testAPIKey)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Unknown state") {
		t.Fatalf("expected 400 unknown state, got %d %s", w.Code, w.Body.String())
	}
	if code, _ := env.poll(t, "never-issued"); code != http.StatusNoContent {
		t.Fatalf("expected absent session, got %d", code)
	}
}

func TestCallback_Retrieved(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.create(t, "curl/8.0")["id"].(string)

	if w := env.callback(id, "request_retrieved", "", testAPIKey); w.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", w.Code, w.Body.String())
	}
	_, session := env.poll(t, id)
	if session.Status != model.StatusRequestRetrieved ||
		session.Message != "QR Code is scanned. Waiting for issuance to complete..." {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestCallback_IssuanceError(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.create(t, "curl/8.0")["id"].(string)

	w := env.callback(id, "issuance_error", `,"error":{"code":"issuance_service_error","message":"boom"}`, testAPIKey)
	if w.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", w.Code, w.Body.String())
	}
	_, session := env.poll(t, id)
	if session.Status != model.StatusIssuanceError || session.Message != "boom" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestCallback_UnsupportedAndRegression(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.create(t, "curl/8.0")["id"].(string)

	if w := env.callback(id, "presentation_verified", "", testAPIKey); w.Code != http.StatusBadRequest ||
		!strings.Contains(w.Body.String(), "Unsupported requestStatus") {
		t.Fatalf("expected 400 unsupported, got %d %s", w.Code, w.Body.String())
	}
	if w := env.callback(id, "issuance_successful", "", testAPIKey); w.Code != http.StatusOK {
		t.Fatalf("success callback: %d", w.Code)
	}
	if w := env.callback(id, "request_retrieved", "", testAPIKey); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a late retrieved callback, got %d", w.Code)
	}
	if _, session := env.poll(t, id); session.Status != model.StatusIssuanceSuccessful {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestCallback_MissingFields(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.create(t, "curl/8.0")["id"].(string)
	header := http.Header{"Api-Key": {testAPIKey}}

	w := env.do(http.MethodPost, "/api/issuer/issue-request-callback", `{"state":"`+id+`"}`, header)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Unsupported requestStatus") {
		t.Fatalf("missing requestStatus: got %d %s", w.Code, w.Body.String())
	}
	w = env.do(http.MethodPost, "/api/issuer/issue-request-callback", `{"requestStatus":"request_retrieved"}`, header)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Unknown state") {
		t.Fatalf("missing state: got %d %s", w.Code, w.Body.String())
	}
	if _, session := env.poll(t, id); session.Status != model.StatusRequestCreated {
		t.Fatalf("incomplete callbacks mutated the session: %+v", session)
	}
}

func TestCallback_MalformedBody(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	w := env.do(http.MethodPost, "/api/issuer/issue-request-callback", `{"requestStatus":"request_ret`,
		http.Header{"Api-Key": {testAPIKey}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"code":400,"message":"invalid request"}` {
		t.Fatalf("expected a fixed message, got %s", got)
	}
}

func TestStatus_MissingID(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	if w := env.do(http.MethodGet, "/api/issuer/issuance-response", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestManifest(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	w := env.do(http.MethodGet, "/api/issuer/get-manifest", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"id":"abc"}` {
		t.Fatalf("unexpected manifest response %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}

	failing := newTestEnv(t, envOptions{downloader: staticDownloader{err: errors.New("dial tcp: refused")}})
	w = failing.do(http.MethodGet, "/api/issuer/get-manifest", "", nil)
	if w.Code != http.StatusInternalServerError || strings.Contains(w.Body.String(), "refused") {
		t.Fatalf("expected generic technical error, got %d %s", w.Code, w.Body.String())
	}
}

func TestHealthzAndRequestID(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	w := env.do(http.MethodGet, "/healthz", "", http.Header{middleware.HeaderRequestID: {"trace-1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	if got := w.Header().Get(middleware.HeaderRequestID); got != "trace-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	if w = env.do(http.MethodGet, "/healthz", "", nil); w.Header().Get(middleware.HeaderRequestID) == "" {
		t.Fatalf("expected a generated request id")
	}
}
