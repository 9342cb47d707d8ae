package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/nutriplan/internal/backend"
	"github.com/ashureev/nutriplan/internal/chat"
	"github.com/ashureev/nutriplan/internal/config"
	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/identity"
	"github.com/ashureev/nutriplan/internal/store"
	"github.com/ashureev/nutriplan/web"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

type fakeBackend struct {
	mu        sync.Mutex
	generated []domain.MealPlanRequest
	followUps [][]domain.ConversationTurn
	release   chan struct{}
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(backend.EndpointToken, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-` + r.PostForm.Get("username") + `","token_type":"bearer"}`))
	})
	mux.HandleFunc(backend.EndpointRegister, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"User registered"}`))
	})
	mux.HandleFunc(backend.EndpointGenerateMealPlan, func(w http.ResponseWriter, r *http.Request) {
		var req domain.MealPlanRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.generated = append(f.generated, req)
		release := f.release
		f.mu.Unlock()
		if release != nil {
			<-release
		}
		_, _ = w.Write([]byte(`{"mealPlan":"# Plan\n\nOats for breakfast"}`))
	})
	mux.HandleFunc(backend.EndpointFollowUp, func(w http.ResponseWriter, r *http.Request) {
		var req backend.FollowUpRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.followUps = append(f.followUps, req.Conversation)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"response":"Eat more **beans**."}`))
	})
	mux.HandleFunc(backend.EndpointCurrentUser, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-bob" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"username":"bob","first_name":"Bob","last_name":"Stone","age":40,"height":180,"weight":82,"goal":"lose"}`))
	})
	mux.HandleFunc(backend.EndpointCurrentMealPlan, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meal_plan":"- Stored plan item"}`))
	})
	mux.HandleFunc(backend.EndpointTweakMealPlan, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"mealPlan":"- Tweaked plan item"}`))
	})
	return mux
}

type testEnv struct {
	srv     *httptest.Server
	client  *http.Client
	handler *Handler
	repo    store.Repository
	backend *fakeBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fb := &fakeBackend{}
	backendSrv := httptest.NewServer(fb.handler())
	t.Cleanup(backendSrv.Close)

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	pages, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}

	cfg := &config.Config{
		BackendURL:     backendSrv.URL,
		BackendTimeout: 5 * time.Second,
		ClientStateTTL: time.Hour,
		RateLimit:      config.RateLimitConfig{RPS: 100, Burst: 100},
	}
	h := NewHandler(cfg, repo, backendSrv.Client(), NewRateLimiter(100, 100), chat.NewVisitManager(), pages)

	r := chi.NewRouter()
	NewHealthHandler(repo).RegisterHealth(r)
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, true))
		h.RegisterRoutes(r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{srv: srv, client: client, handler: h, repo: repo, backend: fb}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) post(t *testing.T, path string, payload any) (int, map[string]string) {
	t.Helper()
	data, _ := json.Marshal(payload)
	resp, err := e.client.Post(e.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) clientID(t *testing.T) string {
	t.Helper()
	u, _ := url.Parse(e.srv.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == identity.ClientCookieName {
			return c.Value
		}
	}
	t.Fatal("no client cookie")
	return ""
}

func TestPagesServed(t *testing.T) {
	env := newTestEnv(t)

	for path, marker := range map[string]string{
		"/":              `id="nutrition-form"`,
		"/index.html":    `id="nutrition-form"`,
		"/login.html":    `id="login-form"`,
		"/chatpage.html": `id="chat-box"`,
	} {
		resp, body := env.get(t, path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d", path, resp.StatusCode)
		}
		if !strings.Contains(body, marker) {
			t.Errorf("GET %s: missing %s", path, marker)
		}
	}
}

func TestDashboardRedirectsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/dashboard.html")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login.html" {
		t.Errorf("expected redirect to /login.html, got %q", loc)
	}
}

func TestLoginDashboardLogout(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.post(t, "/api/login", map[string]string{"username": "bob", "password": "wrong"})
	if status != http.StatusUnauthorized || out["error"] != "Invalid credentials" {
		t.Fatalf("expected 401 Invalid credentials, got %d %v", status, out)
	}

	status, out = env.post(t, "/api/login", map[string]string{"username": "bob", "password": "secret"})
	if status != http.StatusOK || out["redirect"] != "/dashboard.html" {
		t.Fatalf("expected redirect to dashboard, got %d %v", status, out)
	}

	resp, body := env.get(t, "/dashboard.html")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected dashboard, got %d", resp.StatusCode)
	}
	for _, want := range []string{"Bob Stone", "<li>Stored plan item</li>", `id="tweak-form"`} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	status, out = env.post(t, "/api/tweak", map[string]string{"instructions": "less salt"})
	if status != http.StatusOK || !strings.Contains(out["html"], "Tweaked plan item") {
		t.Fatalf("unexpected tweak answer %d %v", status, out)
	}

	status, out = env.post(t, "/api/logout", nil)
	if status != http.StatusOK || out["redirect"] != "/login.html" {
		t.Fatalf("expected redirect to login, got %d %v", status, out)
	}
	if resp, _ := env.get(t, "/dashboard.html"); resp.StatusCode != http.StatusSeeOther {
		t.Errorf("expected dashboard to redirect after logout, got %d", resp.StatusCode)
	}
}

func TestRegisterLogsIn(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.post(t, "/api/register", map[string]any{
		"username": "bob", "password": "secret", "first_name": "Bob", "age": 40,
	})
	if status != http.StatusOK || out["redirect"] != "/dashboard.html" {
		t.Fatalf("expected redirect to dashboard, got %d %v", status, out)
	}
}

func TestTweakRequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.post(t, "/api/tweak", map[string]string{"instructions": "less salt"})
	if status != http.StatusUnauthorized || out["redirect"] != "/login.html" {
		t.Fatalf("expected 401 with login redirect, got %d %v", status, out)
	}
}

func TestMealPlanFlow(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.post(t, "/api/meal-plan", map[string]any{"age": 30, "height": 175})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d %v", status, out)
	}

	status, out = env.post(t, "/api/meal-plan", map[string]any{
		"age": 30, "height": 175, "weight": 70, "goal": "lose", "planType": "new",
	})
	if status != http.StatusOK || out["redirect"] != "/chatpage.html" {
		t.Fatalf("expected redirect to chat page, got %d %v", status, out)
	}

	stored, ok, err := store.ForClient(env.repo, env.clientID(t)).GetItem(context.Background(), domain.KeyMealPlan)
	if err != nil || !ok || !strings.HasPrefix(stored, "# Plan") {
		t.Errorf("expected stored plan, got %q %v %v", stored, ok, err)
	}
}

func TestMealPlanInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/index.html")

	release, ok := env.handler.inflight.Acquire("meal-plan:" + env.clientID(t))
	if !ok {
		t.Fatal("Acquire failed")
	}
	defer release()

	status, _ := env.post(t, "/api/meal-plan", map[string]any{
		"age": 30, "height": 175, "weight": 70, "goal": "lose", "planType": "new",
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
}

func TestConfigEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/config")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	if got["loggedIn"] != false || got["backendUrl"] == "" {
		t.Errorf("unexpected config %v", got)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"healthy"`) {
		t.Errorf("unexpected health answer %d %s", resp.StatusCode, body)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) wsFrame {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f wsFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return f
}

func TestChatSocket(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.post(t, "/api/meal-plan", map[string]any{
		"age": 30, "height": 175, "weight": 70, "goal": "lose", "planType": "new",
	})
	if status != http.StatusOK {
		t.Fatalf("meal plan failed: %d", status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: env.client})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	plan := readFrame(t, ctx, conn)
	if plan.Type != "message" || plan.Message.Kind != chat.KindPlan {
		t.Fatalf("expected meal plan frame, got %+v", plan)
	}

	send, _ := json.Marshal(wsInbound{Type: "send", Text: "more protein?"})
	if err := conn.Write(ctx, websocket.MessageText, send); err != nil {
		t.Fatalf("write: %v", err)
	}

	var kinds []chat.Kind
	var assistant *chat.Message
	for assistant == nil {
		f := readFrame(t, ctx, conn)
		if f.Type == "message" {
			kinds = append(kinds, f.Message.Kind)
			if f.Message.Kind == chat.KindAssistant {
				assistant = f.Message
			}
		}
	}
	if len(kinds) != 3 || kinds[0] != chat.KindUser || kinds[1] != chat.KindLoading {
		t.Errorf("unexpected message order %v", kinds)
	}
	if !strings.Contains(string(assistant.HTML), "<strong>beans</strong>") {
		t.Errorf("unexpected assistant html %q", assistant.HTML)
	}

	env.backend.mu.Lock()
	defer env.backend.mu.Unlock()
	if len(env.backend.followUps) != 1 {
		t.Fatalf("expected one follow-up, got %d", len(env.backend.followUps))
	}
	turns := env.backend.followUps[0]
	if len(turns) != 3 || turns[0].Role != domain.RoleSystem || turns[1].Role != domain.RoleAssistant || turns[2].Content != "more protein?" {
		t.Errorf("unexpected conversation %+v", turns)
	}
}
