package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/vocabsync/internal/storage"
	"github.com/conorfennell/vocabsync/internal/token"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("storage.Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewServer(token.NewManager("test-secret", time.Hour), Options{})
	s.Attach(db)
	return s
}

func do(t *testing.T, s *Server, method, path, tok string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	var decoded map[string]any
	json.Unmarshal(rr.Body.Bytes(), &decoded)
	return rr, decoded
}

func register(t *testing.T, s *Server, username, email string) string {
	t.Helper()
	rr, body := do(t, s, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username, "email": email, "password": "secret1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 from register, but got %d: %s", rr.Code, rr.Body.String())
	}
	tok, _ := body["token"].(string)
	if tok == "" {
		t.Fatal("Expected a token in the register response")
	}
	return tok
}

func TestHealth(t *testing.T) {
	s := NewServer(token.NewManager("x", time.Hour), Options{})
	rr, body := do(t, s, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d", rr.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status 'ok', but got %v", body["status"])
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"].(string)); err != nil {
		t.Errorf("Expected an RFC3339 timestamp, got %v", body["timestamp"])
	}
}

func TestNotReadyAnswers503(t *testing.T) {
	tokens := token.NewManager("x", time.Hour)
	s := NewServer(tokens, Options{})
	tok, _ := tokens.Issue(1, "a", "a@example.com")

	rr, body := do(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@example.com", "password": "secret1"})
	if rr.Code != http.StatusServiceUnavailable || body["error"] == nil {
		t.Errorf("Expected 503 with an error body, but got %d %v", rr.Code, body)
	}
	rr, _ = do(t, s, http.MethodGet, "/api/sync/download", tok, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 on sync routes, but got %d", rr.Code)
	}
	if s.Ready() {
		t.Error("Expected server not to be ready without a store")
	}
}

func TestAttachMarksReadyWithoutLogging(t *testing.T) {
	db, err := storage.Open(storage.DriverSQLite, filepath.Join(t.TempDir(), "attach.db"))
	if err != nil {
		t.Fatalf("storage.Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var logs bytes.Buffer
	s := NewServer(token.NewManager("x", time.Hour), Options{Logger: slog.New(slog.NewTextHandler(&logs, nil))})
	s.Attach(db)

	if !s.Ready() {
		t.Error("Expected server to be ready after Attach")
	}
	if strings.Contains(logs.String(), "database ready") {
		t.Errorf("Expected Attach to leave readiness logging to the caller, but got %q", logs.String())
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	register(t, s, "alice", "alice@example.com")

	testCases := []struct {
		name string
		body any
	}{
		{name: "missing username", body: map[string]string{"email": "b@example.com", "password": "secret1"}},
		{name: "short password", body: map[string]string{"username": "b", "email": "b@example.com", "password": "12345"}},
		{name: "bad email", body: map[string]string{"username": "b", "email": "nope", "password": "secret1"}},
		{name: "duplicate email", body: map[string]string{"username": "b", "email": "alice@example.com", "password": "secret1"}},
		{name: "duplicate username", body: map[string]string{"username": "alice", "email": "b@example.com", "password": "secret1"}},
		{name: "malformed json", body: "{"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr, body := do(t, s, http.MethodPost, "/api/auth/register", "", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, but got %d", rr.Code)
			}
			if body["error"] == nil {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	register(t, s, "alice", "alice@example.com")

	rr, _ := do(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong!!"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for a wrong password, but got %d", rr.Code)
	}
	rr, _ = do(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "bob@example.com", "password": "secret1"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for an unknown email, but got %d", rr.Code)
	}

	rr, body := do(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "secret1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from login, but got %d", rr.Code)
	}
	tok := body["token"].(string)
	user := body["user"].(map[string]any)
	if user["username"] != "alice" {
		t.Errorf("Expected username 'alice', but got %v", user["username"])
	}

	rr, body = do(t, s, http.MethodGet, "/api/auth/me", tok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /me, but got %d", rr.Code)
	}
	me := body["user"].(map[string]any)
	if me["email"] != "alice@example.com" {
		t.Errorf("Expected email 'alice@example.com', but got %v", me["email"])
	}
	if _, ok := me["password"]; ok {
		t.Error("Expected the password hash never to be returned")
	}
}

func TestMeForVanishedUser(t *testing.T) {
	s := newTestServer(t)
	tok, _ := s.tokens.Issue(999, "ghost", "ghost@example.com")
	rr, _ := do(t, s, http.MethodGet, "/api/auth/me", tok, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, but got %d", rr.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)
	other := token.NewManager("other-secret", time.Hour)
	forged, _ := other.Issue(1, "a", "a@example.com")

	testCases := []struct {
		name     string
		header   string
		expected int
	}{
		{name: "missing", header: "", expected: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", expected: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc", expected: http.StatusForbidden},
		{name: "forged", header: "Bearer " + forged, expected: http.StatusForbidden},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/sync/download", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			s.ServeHTTP(rr, req)
			if rr.Code != tc.expected {
				t.Errorf("Expected status %d, but got %d", tc.expected, rr.Code)
			}
		})
	}
}

func TestSyncRoundTrip(t *testing.T) {
	s := newTestServer(t)
	alice := register(t, s, "alice", "alice@example.com")
	bob := register(t, s, "bob", "bob@example.com")

	upload := `{"data":{"vocab_book":[{"originalWord":"猫"}],"review_schedule":[],"note":"plain text","n":3}}`
	rr, body := do(t, s, http.MethodPost, "/api/sync/upload", alice, upload)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from upload, but got %d: %s", rr.Code, rr.Body.String())
	}
	if body["count"] != float64(4) {
		t.Errorf("Expected count 4, but got %v", body["count"])
	}

	rr, _ = do(t, s, http.MethodGet, "/api/sync/download", alice, nil)
	var download struct {
		Data  map[string]json.RawMessage `json:"data"`
		Count int                        `json:"count"`
	}
	json.Unmarshal(rr.Body.Bytes(), &download)
	if download.Count != 4 {
		t.Fatalf("Expected 4 entries, but got %d", download.Count)
	}
	expected := map[string]string{
		"vocab_book":      `[{"originalWord":"猫"}]`,
		"review_schedule": `[]`,
		"note":            `"plain text"`,
		"n":               `3`,
	}
	for k, v := range expected {
		if string(download.Data[k]) != v {
			t.Errorf("Expected %s to be %s, but got %s", k, v, download.Data[k])
		}
	}

	_, body = do(t, s, http.MethodGet, "/api/sync/download", bob, nil)
	if body["count"] != float64(0) {
		t.Errorf("Expected bob to see no data, but got %v", body["count"])
	}

	rr, _ = do(t, s, http.MethodPost, "/api/sync/item", alice, map[string]any{"key": "n", "value": 4})
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 from item sync, but got %d", rr.Code)
	}
	rr, _ = do(t, s, http.MethodPost, "/api/sync/item", alice, map[string]any{"value": 4})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a key, but got %d", rr.Code)
	}

	rr, _ = do(t, s, http.MethodDelete, "/api/sync/item/note", alice, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 from item delete, but got %d", rr.Code)
	}
	rr, _ = do(t, s, http.MethodGet, "/api/sync/download", alice, nil)
	download.Data = nil
	json.Unmarshal(rr.Body.Bytes(), &download)
	if _, ok := download.Data["note"]; ok {
		t.Error("Expected 'note' to be deleted")
	}
	if string(download.Data["n"]) != "4" {
		t.Errorf("Expected n to be 4, but got %s", download.Data["n"])
	}

	rr, _ = do(t, s, http.MethodDelete, "/api/sync/all", alice, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 from delete all, but got %d", rr.Code)
	}
	_, body = do(t, s, http.MethodGet, "/api/sync/download", alice, nil)
	if body["count"] != float64(0) {
		t.Errorf("Expected no entries after delete all, but got %v", body["count"])
	}
}

func TestUploadRejectsNonObject(t *testing.T) {
	s := newTestServer(t)
	tok := register(t, s, "alice", "alice@example.com")
	for _, body := range []string{`{}`, `{"data":null}`, `{"data":[1,2]}`, `{"data":"x"}`} {
		rr, _ := do(t, s, http.MethodPost, "/api/sync/upload", tok, body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, but got %d", body, rr.Code)
		}
	}
}
