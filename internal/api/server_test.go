package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AlienQ7/iotpro/internal/auth"
	"github.com/AlienQ7/iotpro/internal/device"
	"github.com/AlienQ7/iotpro/internal/infrastructure/config"
	"github.com/AlienQ7/iotpro/internal/infrastructure/logging"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// testServer creates a Server backed by a temp-file SQLite database.
func testServer(t *testing.T) *Server {
	t.Helper()

	db := setupTestDB(t)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	authSvc := auth.NewService(auth.NewUserRepository(db), testSecret, 24*time.Hour, log)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:      log,
		Auth:        authSvc,
		Switches:    device.NewSwitchRepository(db),
		Connections: device.NewConnectionRepository(db),
		MQTT:        nil,
		TSDB:        nil,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(context.Background())

	return srv
}

// setupTestDB creates a temp-file SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			phone TEXT,
			gender TEXT,
			password_digest TEXT NOT NULL,
			recovery_digest TEXT NOT NULL,
			salt TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE switches (
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			is_on INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, name)
		) STRICT;

		CREATE TABLE connections (
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			device_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'offline',
			last_seen_at TEXT,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, device_id)
		) STRICT;
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	return db
}

// doJSON performs a JSON request against the router and decodes the response.
func doJSON(t *testing.T, router http.Handler, method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := map[string]any{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

// signupAndLogin registers a user and returns a valid session token.
func signupAndLogin(t *testing.T, router http.Handler) string {
	t.Helper()

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ann","email":"ann@x.com","password":"secret-pass"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", w.Code, w.Body.String())
	}

	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		`{"email":"ann@x.com","password":"secret-pass"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatal("login response missing token")
	}
	return token
}

func TestHealth(t *testing.T) {
	router := testServer(t).buildRouter()

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health body = %v", resp)
	}
}

func TestSignup(t *testing.T) {
	router := testServer(t).buildRouter()

	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ann","email":"Ann@X.com","password":"secret-pass"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", w.Code, w.Body.String())
	}

	code, _ := resp["recovery_code"].(string)
	if len(code) != 12 {
		t.Errorf("recovery code = %q, want 12 characters", code)
	}

	user, _ := resp["user"].(map[string]any)
	if user == nil {
		t.Fatal("response missing user")
	}
	if user["email"] != "ann@x.com" {
		t.Errorf("user email = %v, want normalized ann@x.com", user["email"])
	}
	// Digest material must never appear in responses
	for _, field := range []string{"password_digest", "recovery_digest", "salt"} {
		if _, present := user[field]; present {
			t.Errorf("response leaks %s", field)
		}
	}
}

func TestSignup_Duplicate(t *testing.T) {
	router := testServer(t).buildRouter()

	body := `{"name":"Ann","email":"ann@x.com","password":"secret-pass"}`
	if w, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", body, ""); w.Code != http.StatusCreated {
		t.Fatalf("first signup status = %d", w.Code)
	}
	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", body, "")
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", w.Code)
	}
}

func TestSignup_Validation(t *testing.T) {
	router := testServer(t).buildRouter()

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ann","email":"not-an-email","password":"secret-pass"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad email status = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", `{not json`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}
}

func TestLogin_EnumerationResistance(t *testing.T) {
	router := testServer(t).buildRouter()

	if w, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ann","email":"ann@x.com","password":"secret-pass"}`, ""); w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d", w.Code)
	}

	// Unknown email and wrong password must be byte-identical responses
	wAbsent, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		`{"email":"nobody@x.com","password":"secret-pass"}`, "")
	wWrong, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		`{"email":"ann@x.com","password":"wrong-pass!"}`, "")

	if wAbsent.Code != http.StatusUnauthorized || wWrong.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want 401, 401", wAbsent.Code, wWrong.Code)
	}
	if wAbsent.Body.String() != wWrong.Body.String() {
		t.Errorf("login failure bodies differ: %q vs %q", wAbsent.Body.String(), wWrong.Body.String())
	}
}

func TestForgot_GenericResponse(t *testing.T) {
	router := testServer(t).buildRouter()

	wKnown, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/forgot", `{"email":"ann@x.com"}`, "")
	wUnknown, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/forgot", `{"email":"nobody@x.com"}`, "")

	if wKnown.Code != http.StatusOK || wUnknown.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d, want 200, 200", wKnown.Code, wUnknown.Code)
	}
	if wKnown.Body.String() != wUnknown.Body.String() {
		t.Errorf("forgot bodies differ: %q vs %q", wKnown.Body.String(), wUnknown.Body.String())
	}
}

func TestReset_Flow(t *testing.T) {
	router := testServer(t).buildRouter()

	_, signupResp := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ann","email":"ann@x.com","password":"old-password"}`, "")
	code, _ := signupResp["recovery_code"].(string)

	w, resetResp := doJSON(t, router, http.MethodPost, "/api/v1/auth/reset",
		`{"email":"ann@x.com","recovery_code":"`+code+`","new_password":"new-password"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d: %s", w.Code, w.Body.String())
	}
	newCode, _ := resetResp["recovery_code"].(string)
	if len(newCode) != 12 || newCode == code {
		t.Errorf("replacement code = %q", newCode)
	}

	// Consumed code is dead
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/auth/reset",
		`{"email":"ann@x.com","recovery_code":"`+code+`","new_password":"another-pass"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("stale code status = %d, want 401", w.Code)
	}

	// New password works
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		`{"email":"ann@x.com","password":"new-password"}`, "")
	if w.Code != http.StatusOK {
		t.Errorf("login with new password status = %d, want 200", w.Code)
	}
}

func TestDeleteAccount(t *testing.T) {
	router := testServer(t).buildRouter()

	if w, _ := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ann","email":"ann@x.com","password":"secret-pass"}`, ""); w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d", w.Code)
	}

	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/delete", `{"email":"ann@x.com"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body.String())
	}
	if resp["success"] != true {
		t.Errorf("delete body = %v, want success true", resp)
	}

	w, resp = doJSON(t, router, http.MethodPost, "/api/v1/auth/delete", `{"email":"ann@x.com"}`, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", w.Code)
	}
	if resp["success"] != false || resp["error"] != "User not found" {
		t.Errorf("not-found body = %v", resp)
	}
}

func TestCORS_Preflight(t *testing.T) {
	router := testServer(t).buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, Authorization" {
		t.Errorf("Allow-Headers = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	router := testServer(t).buildRouter()

	w, _ := doJSON(t, router, http.MethodGet, "/api/v1/switches", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/switches", "", "not-a-token")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", w.Code)
	}
}

func TestSwitches_CRUD(t *testing.T) {
	router := testServer(t).buildRouter()
	token := signupAndLogin(t, router)

	// Create
	w, sw := doJSON(t, router, http.MethodPost, "/api/v1/switches",
		`{"name":"porch-light","is_on":true}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("set switch status = %d: %s", w.Code, w.Body.String())
	}
	if sw["name"] != "porch-light" || sw["is_on"] != true {
		t.Errorf("switch body = %v", sw)
	}

	// Toggle
	w, sw = doJSON(t, router, http.MethodPost, "/api/v1/switches",
		`{"name":"porch-light","is_on":false}`, token)
	if w.Code != http.StatusOK || sw["is_on"] != false {
		t.Errorf("toggle: status = %d, body = %v", w.Code, sw)
	}

	// List
	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/switches", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	switches, _ := resp["switches"].([]any)
	if len(switches) != 1 {
		t.Errorf("switch count = %d, want 1", len(switches))
	}

	// Get
	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/switches/porch-light", "", token)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", w.Code)
	}

	// Delete
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/switches/porch-light", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d, want 200", rec.Code)
	}

	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/switches/porch-light", "", token)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestSwitches_BadName(t *testing.T) {
	router := testServer(t).buildRouter()
	token := signupAndLogin(t, router)

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/switches",
		`{"name":"Porch Light","is_on":true}`, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad name status = %d, want 400", w.Code)
	}
}

func TestConnections_UpsertAndList(t *testing.T) {
	router := testServer(t).buildRouter()
	token := signupAndLogin(t, router)

	w, conn := doJSON(t, router, http.MethodPost, "/api/v1/connections",
		`{"device_id":"thermostat-01","status":"online"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("upsert status = %d: %s", w.Code, w.Body.String())
	}
	if conn["status"] != "online" || conn["last_seen_at"] == nil {
		t.Errorf("connection body = %v", conn)
	}

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/connections",
		`{"device_id":"thermostat-01","status":"rebooting"}`, token)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad status code = %d, want 400", w.Code)
	}

	w, resp := doJSON(t, router, http.MethodGet, "/api/v1/connections", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	conns, _ := resp["connections"].([]any)
	if len(conns) != 1 {
		t.Errorf("connection count = %d, want 1", len(conns))
	}
}

func TestDeleteViaPost(t *testing.T) {
	router := testServer(t).buildRouter()
	token := signupAndLogin(t, router)

	if w, _ := doJSON(t, router, http.MethodPost, "/api/v1/switches",
		`{"name":"porch-light","is_on":true}`, token); w.Code != http.StatusOK {
		t.Fatalf("set switch status = %d", w.Code)
	}
	if w, _ := doJSON(t, router, http.MethodPost, "/api/v1/connections",
		`{"device_id":"thermostat-01","status":"online"}`, token); w.Code != http.StatusOK {
		t.Fatalf("upsert connection status = %d", w.Code)
	}

	// Browsers can only preflight GET and POST, so deletes are also
	// reachable through a POST alias.
	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/switches/porch-light/delete", "", token)
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Errorf("switch delete via POST: status = %d, body = %v", w.Code, resp)
	}
	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/switches/porch-light", "", token)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}

	w, resp = doJSON(t, router, http.MethodPost, "/api/v1/connections/thermostat-01/delete", "", token)
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Errorf("connection delete via POST: status = %d, body = %v", w.Code, resp)
	}
	w, resp = doJSON(t, router, http.MethodGet, "/api/v1/connections", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if conns, _ := resp["connections"].([]any); len(conns) != 0 {
		t.Errorf("connection count after delete = %d, want 0", len(conns))
	}
}

func TestPresenceMessage(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	w, signupResp := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup",
		`{"name":"Ann","email":"ann@x.com","password":"secret-pass"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d", w.Code)
	}
	user, _ := signupResp["user"].(map[string]any)
	userID, _ := user["id"].(string)
	if userID == "" {
		t.Fatal("signup response missing user ID")
	}

	topic := "iotpro/conn/" + userID + "/sensor-01"
	if err := srv.handlePresenceMessage(topic, []byte(`{"status":"online"}`)); err != nil {
		t.Fatalf("handlePresenceMessage() error = %v", err)
	}

	conn, err := srv.connections.Get(context.Background(), userID, "sensor-01")
	if err != nil {
		t.Fatalf("Get() after presence message: %v", err)
	}
	if conn.Status != device.StatusOnline {
		t.Errorf("status = %q, want online", conn.Status)
	}

	// An empty payload clears a retained message; nothing to record.
	if err := srv.handlePresenceMessage(topic, nil); err != nil {
		t.Fatalf("empty payload error = %v", err)
	}
	conn, err = srv.connections.Get(context.Background(), userID, "sensor-01")
	if err != nil {
		t.Fatalf("Get() after empty payload: %v", err)
	}
	if conn.Status != device.StatusOnline {
		t.Errorf("empty payload changed status to %q", conn.Status)
	}

	// Malformed traffic is dropped, never surfaced as a handler error
	if err := srv.handlePresenceMessage("iotpro/system/status", []byte(`{"status":"online"}`)); err != nil {
		t.Errorf("unexpected topic error = %v", err)
	}
	if err := srv.handlePresenceMessage(topic, []byte(`not json`)); err != nil {
		t.Errorf("malformed payload error = %v", err)
	}
	if err := srv.handlePresenceMessage(topic, []byte(`{"status":"rebooting"}`)); err != nil {
		t.Errorf("invalid status error = %v", err)
	}
	conn, err = srv.connections.Get(context.Background(), userID, "sensor-01")
	if err != nil {
		t.Fatalf("Get() after malformed traffic: %v", err)
	}
	if conn.Status != device.StatusOnline {
		t.Errorf("malformed traffic changed status to %q", conn.Status)
	}
}

func TestWSTicket(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	token := signupAndLogin(t, router)

	w, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/ws-ticket", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("ws-ticket status = %d: %s", w.Code, w.Body.String())
	}
	ticket, _ := resp["ticket"].(string)
	if ticket == "" {
		t.Fatal("response missing ticket")
	}

	// Single use: first consume succeeds, second fails
	entry, ok := srv.tickets.consume(ticket)
	if !ok {
		t.Fatal("ticket should be valid")
	}
	if entry.userID == "" {
		t.Error("ticket should carry the user ID")
	}
	if _, ok := srv.tickets.consume(ticket); ok {
		t.Error("ticket should be single-use")
	}

	// Without a session, no ticket
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/auth/ws-ticket", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated ws-ticket status = %d, want 401", w.Code)
	}
}
