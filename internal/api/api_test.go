package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/menjalnica/internal/blob"
	"github.com/erazemk/menjalnica/internal/db"
	"github.com/erazemk/menjalnica/internal/identity"
	"github.com/erazemk/menjalnica/internal/live"
	"github.com/erazemk/menjalnica/internal/market"
	"github.com/erazemk/menjalnica/internal/metrics"
	"github.com/erazemk/menjalnica/internal/model"
)

const testJWTSecret = "test-secret"

func newTestServer(t *testing.T, loginRateLimit int) *httptest.Server {
	t.Helper()
	database := db.NewTestDB(t)
	hub := live.NewHub(nil)
	t.Cleanup(func() { hub.Close() })

	server := httptest.NewUnstartedServer(nil)
	blobs := blob.NewSQLiteStore(database, "")
	m := metrics.New()

	server.Config.Handler = NewRouter(Deps{
		DB: database,
		Identity: &identity.Service{
			DB:         database,
			Blobs:      blobs,
			JWTSecret:  testJWTSecret,
			BcryptCost: bcrypt.MinCost,
		},
		Market: &market.Service{
			DB:      database,
			Blobs:   blobs,
			Hub:     hub,
			Metrics: m,
		},
		Blobs:          blobs,
		Metrics:        m,
		LoginRateLimit: loginRateLimit,
	})
	server.Start()
	t.Cleanup(server.Close)

	return server
}

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServer(t, 0)
}

// registerUser creates an account and returns its bearer token and user ID.
func registerUser(t *testing.T, server *httptest.Server, email string) (string, string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"email":       email,
		"password":    "password123",
		"displayName": strings.Split(email, "@")[0],
	})
	resp, err := http.Post(server.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: %d", resp.StatusCode)
	}

	var session identity.Session
	json.NewDecoder(resp.Body).Decode(&session)
	if session.Token == "" {
		t.Fatal("empty token from register")
	}
	return session.Token, session.User.ID
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func testPNG() []byte {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 24)))
	return buf.Bytes()
}

// itemRequest builds a multipart item creation request. A nil image omits
// the file part.
func itemRequest(t *testing.T, url, token string, fields map[string]string, img []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if img != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		part.Write(img)
	}
	mw.Close()

	req, err := http.NewRequest("POST", url, &body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validItemFields(title string) map[string]string {
	return map[string]string{
		"title":       title,
		"description": "Well looked after and ready for a new home.",
		"category":    "Sports",
		"condition":   "good",
	}
}

func createItem(t *testing.T, server *httptest.Server, token, title string) model.Item {
	t.Helper()
	resp, err := http.DefaultClient.Do(itemRequest(t, server.URL+"/api/items", token, validItemFields(title), testPNG()))
	if err != nil {
		t.Fatalf("create item request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d", resp.StatusCode)
	}
	var item model.Item
	json.NewDecoder(resp.Body).Decode(&item)
	return item
}

func doJSON(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	req, _ := authRequest(method, url, token, body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func TestLoginEndpoint(t *testing.T) {
	server := setupTestServer(t)
	registerUser(t, server, "alice@example.com")

	body, _ := json.Marshal(map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	body, _ = json.Marshal(map[string]string{"email": "ALICE@example.com", "password": "password123"})
	resp, _ = http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for valid login, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRegisterValidation(t *testing.T) {
	server := setupTestServer(t)
	registerUser(t, server, "alice@example.com")

	body, _ := json.Marshal(map[string]string{"email": "alice@example.com", "password": "password123"})
	resp, _ := http.Post(server.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for duplicate email, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	body, _ = json.Marshal(map[string]string{"email": "bob@example.com", "password": "short"})
	resp, _ = http.Post(server.URL+"/api/auth/register", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for short password, got %d", resp.StatusCode)
	}
	var ve validationResponse
	json.NewDecoder(resp.Body).Decode(&ve)
	resp.Body.Close()
	if ve.Fields["password"] == "" {
		t.Errorf("expected password field error, got %v", ve.Fields)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	server := setupTestServer(t)
	token, _ := registerUser(t, server, "alice@example.com")

	if code := doJSON(t, "POST", server.URL+"/api/auth/logout", token, nil, nil); code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", code)
	}
	if code := doJSON(t, "GET", server.URL+"/api/me", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", code)
	}
}

func TestProfileFlow(t *testing.T) {
	server := setupTestServer(t)
	token, id := registerUser(t, server, "alice@example.com")

	var me model.User
	if code := doJSON(t, "GET", server.URL+"/api/me", token, nil, &me); code != http.StatusOK {
		t.Fatalf("get me: expected 200, got %d", code)
	}
	if me.ID != id || me.Email != "alice@example.com" {
		t.Errorf("unexpected profile %+v", me)
	}

	update := map[string]string{"email": "alice@example.org", "displayName": "Alice"}
	if code := doJSON(t, "PUT", server.URL+"/api/me", token, update, &me); code != http.StatusOK {
		t.Fatalf("update me: expected 200, got %d", code)
	}
	if me.Email != "alice@example.org" || me.DisplayName != "Alice" {
		t.Errorf("profile not updated: %+v", me)
	}

	pw := map[string]string{"currentPassword": "wrong-password", "newPassword": "new-password"}
	if code := doJSON(t, "PUT", server.URL+"/api/me/password", token, pw, nil); code != http.StatusUnauthorized {
		t.Errorf("wrong current password: expected 401, got %d", code)
	}
	pw["currentPassword"] = "password123"
	if code := doJSON(t, "PUT", server.URL+"/api/me/password", token, pw, nil); code != http.StatusOK {
		t.Errorf("change password: expected 200, got %d", code)
	}
}

func TestProfilePhotoUpload(t *testing.T) {
	server := setupTestServer(t)
	token, _ := registerUser(t, server, "alice@example.com")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "me.png")
	part.Write(testPNG())
	mw.Close()

	req, _ := http.NewRequest("PUT", server.URL+"/api/me/photo", &body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload photo: %v", err)
	}
	var me model.User
	json.NewDecoder(resp.Body).Decode(&me)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload photo: expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(me.PhotoURL, blob.DownloadPath+"profile-photos/") {
		t.Errorf("unexpected photo URL %q", me.PhotoURL)
	}
}

func TestItemsAPIFlow(t *testing.T) {
	server := setupTestServer(t)
	alice, aliceID := registerUser(t, server, "alice@example.com")
	bob, _ := registerUser(t, server, "bob@example.com")

	item := createItem(t, server, alice, "Mountain bike")
	if item.UserID != aliceID || item.Status != model.ItemStatusAvailable {
		t.Errorf("unexpected item %+v", item)
	}

	// The image is served publicly.
	imgResp, err := http.Get(server.URL + item.ImageURL)
	if err != nil {
		t.Fatalf("fetching image: %v", err)
	}
	imgData, _ := io.ReadAll(imgResp.Body)
	imgResp.Body.Close()
	if imgResp.StatusCode != http.StatusOK || imgResp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("image: status %d, type %q", imgResp.StatusCode, imgResp.Header.Get("Content-Type"))
	}
	if len(imgData) == 0 {
		t.Error("expected image bytes")
	}

	var mine []model.Item
	doJSON(t, "GET", server.URL+"/api/items/mine", alice, nil, &mine)
	if len(mine) != 1 || mine[0].ID != item.ID {
		t.Errorf("own items = %+v", mine)
	}

	// Owners never see their own items in the marketplace.
	var listed []model.Item
	doJSON(t, "GET", server.URL+"/api/items", alice, nil, &listed)
	if len(listed) != 0 {
		t.Errorf("expected no listed items for owner, got %d", len(listed))
	}

	doJSON(t, "GET", server.URL+"/api/items?search=BIKE&category=Sports", bob, nil, &listed)
	if len(listed) != 1 {
		t.Errorf("expected 1 matching item, got %d", len(listed))
	}
	doJSON(t, "GET", server.URL+"/api/items?category=Books", bob, nil, &listed)
	if len(listed) != 0 {
		t.Errorf("expected no books, got %d", len(listed))
	}

	var got model.Item
	if code := doJSON(t, "GET", server.URL+"/api/items/"+item.ID, bob, nil, &got); code != http.StatusOK {
		t.Fatalf("get item: expected 200, got %d", code)
	}
	if code := doJSON(t, "GET", server.URL+"/api/items/missing", bob, nil, nil); code != http.StatusNotFound {
		t.Errorf("missing item: expected 404, got %d", code)
	}
}

func TestCreateItemErrors(t *testing.T) {
	server := setupTestServer(t)
	token, _ := registerUser(t, server, "alice@example.com")

	tests := []struct {
		name   string
		fields map[string]string
		img    []byte
		want   int
	}{
		{"missing image", validItemFields("Desk lamp"), nil, http.StatusUnprocessableEntity},
		{"short title", validItemFields("Ab"), testPNG(), http.StatusUnprocessableEntity},
		{"not an image", validItemFields("Desk lamp"), []byte("plain text"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.DefaultClient.Do(itemRequest(t, server.URL+"/api/items", token, tt.fields, tt.img))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestSwapAPIFlow(t *testing.T) {
	server := setupTestServer(t)
	alice, _ := registerUser(t, server, "alice@example.com")
	bob, _ := registerUser(t, server, "bob@example.com")
	carol, _ := registerUser(t, server, "carol@example.com")

	bike := createItem(t, server, alice, "Mountain bike")
	lamp := createItem(t, server, bob, "Desk lamp")

	var swap model.SwapRequest
	code := doJSON(t, "POST", server.URL+"/api/swaps", bob, map[string]any{
		"requestedItemId": bike.ID,
		"offeredItemIds":  []string{lamp.ID},
	}, &swap)
	if code != http.StatusCreated {
		t.Fatalf("create swap: expected 201, got %d", code)
	}
	if swap.Status != model.SwapStatusPending || swap.FromUserEmail != "bob@example.com" {
		t.Errorf("unexpected swap %+v", swap)
	}

	// Only the requested item's owner may accept.
	if code := doJSON(t, "POST", server.URL+"/api/swaps/"+swap.ID+"/accept", bob, nil, nil); code != http.StatusForbidden {
		t.Errorf("accept by requester: expected 403, got %d", code)
	}
	if code := doJSON(t, "GET", server.URL+"/api/swaps/"+swap.ID, carol, nil, nil); code != http.StatusForbidden {
		t.Errorf("get by outsider: expected 403, got %d", code)
	}

	var incoming []model.SwapRequest
	doJSON(t, "GET", server.URL+"/api/swaps/incoming", alice, nil, &incoming)
	if len(incoming) != 1 || incoming[0].ID != swap.ID {
		t.Fatalf("incoming = %+v", incoming)
	}
	var outgoing []model.SwapRequest
	doJSON(t, "GET", server.URL+"/api/swaps/outgoing", bob, nil, &outgoing)
	if len(outgoing) != 1 {
		t.Fatalf("outgoing = %+v", outgoing)
	}

	if code := doJSON(t, "POST", server.URL+"/api/swaps/"+swap.ID+"/accept", alice, nil, &swap); code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d", code)
	}
	if swap.Status != model.SwapStatusAccepted {
		t.Errorf("expected accepted, got %s", swap.Status)
	}

	// Accepting twice is an invalid transition.
	if code := doJSON(t, "POST", server.URL+"/api/swaps/"+swap.ID+"/accept", alice, nil, nil); code != http.StatusConflict {
		t.Errorf("second accept: expected 409, got %d", code)
	}

	if code := doJSON(t, "POST", server.URL+"/api/swaps/"+swap.ID+"/complete", bob, nil, &swap); code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d", code)
	}
	if swap.Status != model.SwapStatusCompleted {
		t.Errorf("expected completed, got %s", swap.Status)
	}

	var got model.Item
	doJSON(t, "GET", server.URL+"/api/items/"+bike.ID, alice, nil, &got)
	if got.Status != model.ItemStatusSwapped {
		t.Errorf("bike status = %s, want swapped", got.Status)
	}
}

func TestSwapValidationErrors(t *testing.T) {
	server := setupTestServer(t)
	alice, _ := registerUser(t, server, "alice@example.com")
	bob, _ := registerUser(t, server, "bob@example.com")

	bike := createItem(t, server, alice, "Mountain bike")
	book := createItem(t, server, alice, "Old paperback")

	tests := []struct {
		name  string
		token string
		body  map[string]any
		want  int
	}{
		{"self swap", alice, map[string]any{"requestedItemId": bike.ID, "offeredItemIds": []string{book.ID}}, http.StatusUnprocessableEntity},
		{"no offered items", bob, map[string]any{"requestedItemId": bike.ID, "offeredItemIds": []string{}}, http.StatusUnprocessableEntity},
		{"offering others' items", bob, map[string]any{"requestedItemId": bike.ID, "offeredItemIds": []string{book.ID}}, http.StatusUnprocessableEntity},
		{"unknown item", bob, map[string]any{"requestedItemId": "missing", "offeredItemIds": []string{book.ID}}, http.StatusNotFound},
		{"missing requested item", bob, map[string]any{"offeredItemIds": []string{book.ID}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := doJSON(t, "POST", server.URL+"/api/swaps", tt.token, tt.body, nil); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestIncomingStream(t *testing.T) {
	server := setupTestServer(t)
	alice, _ := registerUser(t, server, "alice@example.com")
	bob, _ := registerUser(t, server, "bob@example.com")
	bike := createItem(t, server, alice, "Mountain bike")
	lamp := createItem(t, server, bob, "Desk lamp")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// EventSource clients pass the token as a query parameter.
	req, _ := http.NewRequestWithContext(ctx, "GET", server.URL+"/api/swaps/incoming/stream?access_token="+alice, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("opening stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}

	events := bufio.NewReader(resp.Body)
	next := func() []model.SwapRequest {
		t.Helper()
		for {
			line, err := events.ReadString('\n')
			if err != nil {
				t.Fatalf("reading stream: %v", err)
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var snap []model.SwapRequest
				if err := json.Unmarshal([]byte(data), &snap); err != nil {
					t.Fatalf("decoding snapshot: %v", err)
				}
				return snap
			}
		}
	}

	if snap := next(); len(snap) != 0 {
		t.Fatalf("initial snapshot = %+v, want empty", snap)
	}

	doJSON(t, "POST", server.URL+"/api/swaps", bob, map[string]any{
		"requestedItemId": bike.ID,
		"offeredItemIds":  []string{lamp.ID},
	}, nil)

	snap := next()
	if len(snap) != 1 || snap[0].RequestedItemID != bike.ID {
		t.Errorf("updated snapshot = %+v", snap)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	server := setupTestServer(t)

	paths := []string{"/api/items", "/api/me", "/api/swaps/incoming", "/api/items/mine/stream"}
	for _, p := range paths {
		resp, _ := http.Get(server.URL + p)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 for unauthenticated request, got %d", p, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Query tokens are only accepted on streams.
	token, _ := registerUser(t, server, "alice@example.com")
	resp, _ := http.Get(server.URL + "/api/me?access_token=" + token)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("query token on /api/me: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginRateLimit(t *testing.T) {
	server := newTestServer(t, 2)

	body, _ := json.Marshal(map[string]string{"email": "nobody@example.com", "password": "password123"})
	var last int
	for range 3 {
		resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("login request: %v", err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after limit, got %d", last)
	}
}

func TestOpsEndpoints(t *testing.T) {
	server := setupTestServer(t)

	resp, _ := http.Get(server.URL + "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on responses")
	}
	resp.Body.Close()

	resp, _ = http.Get(server.URL + "/metrics")
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "menjalnica_items_created_total") {
		t.Errorf("metrics: status %d", resp.StatusCode)
	}
}
