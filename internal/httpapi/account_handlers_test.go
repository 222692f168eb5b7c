package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cuentas.dev/internal/account"
)

type stubStore struct {
	emailTakenFn     func(ctx context.Context, email, excludeID string) (bool, error)
	nameTakenFn      func(ctx context.Context, name string) (bool, error)
	createAccountFn  func(ctx context.Context, acc account.Account, roles []string, perms account.Permissions) (string, error)
	updateAccountFn  func(ctx context.Context, acc account.Account, roles []string, perms account.Permissions) error
	findByEmailFn    func(ctx context.Context, email string) (account.Account, error)
	rolesForFn       func(ctx context.Context, accountID string) ([]string, error)
	permissionsForFn func(ctx context.Context, accountID string) (account.Permissions, error)
	listActiveFn     func(ctx context.Context) ([]account.ListingRow, error)
	profileFn        func(ctx context.Context, accountID string) (account.Profile, error)
	setActiveFn      func(ctx context.Context, accountID string, active bool) error
}

func (s *stubStore) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	if s.emailTakenFn != nil {
		return s.emailTakenFn(ctx, email, excludeID)
	}
	return false, nil
}

func (s *stubStore) NameTaken(ctx context.Context, name string) (bool, error) {
	if s.nameTakenFn != nil {
		return s.nameTakenFn(ctx, name)
	}
	return false, nil
}

func (s *stubStore) CreateAccount(ctx context.Context, acc account.Account, roles []string, perms account.Permissions) (string, error) {
	if s.createAccountFn != nil {
		return s.createAccountFn(ctx, acc, roles, perms)
	}
	return "acc-1", nil
}

func (s *stubStore) UpdateAccount(ctx context.Context, acc account.Account, roles []string, perms account.Permissions) error {
	if s.updateAccountFn != nil {
		return s.updateAccountFn(ctx, acc, roles, perms)
	}
	return nil
}

func (s *stubStore) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	if s.findByEmailFn != nil {
		return s.findByEmailFn(ctx, email)
	}
	return account.Account{}, account.ErrNotFound
}

func (s *stubStore) RolesFor(ctx context.Context, accountID string) ([]string, error) {
	if s.rolesForFn != nil {
		return s.rolesForFn(ctx, accountID)
	}
	return nil, nil
}

func (s *stubStore) PermissionsFor(ctx context.Context, accountID string) (account.Permissions, error) {
	if s.permissionsForFn != nil {
		return s.permissionsForFn(ctx, accountID)
	}
	return account.Permissions{}, nil
}

func (s *stubStore) ListActive(ctx context.Context) ([]account.ListingRow, error) {
	if s.listActiveFn != nil {
		return s.listActiveFn(ctx)
	}
	return nil, nil
}

func (s *stubStore) Profile(ctx context.Context, accountID string) (account.Profile, error) {
	if s.profileFn != nil {
		return s.profileFn(ctx, accountID)
	}
	return account.Profile{}, account.ErrNotFound
}

func (s *stubStore) SetActive(ctx context.Context, accountID string, active bool) error {
	if s.setActiveFn != nil {
		return s.setActiveFn(ctx, accountID, active)
	}
	return nil
}

const testSecret = "test-secret"

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T, store account.Store) *apiClient {
	t.Helper()

	svc, err := account.NewService(store, testSecret, account.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(ReadyProbe{}, "test", svc, Options{RateBurst: 1000, RatePerSec: 1000})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodGet, path, nil, headers)
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// issueToken mints a token the way the service under test would.
func issueToken(t *testing.T, accountID string, roles []string, perms account.Permissions) string {
	t.Helper()
	codec, err := account.NewTokenCodec(testSecret)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	token, _, err := codec.Issue(accountID, roles, perms, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestRegisterScenario(t *testing.T) {
	store := &stubStore{
		createAccountFn: func(_ context.Context, acc account.Account, roles []string, perms account.Permissions) (string, error) {
			return "acc-ana", nil
		},
	}
	api := newTestAPI(t, store)

	resp := api.post("/v1/auth/register", map[string]any{
		"nombre":   "ana",
		"email":    "a@x.com",
		"password": "p1",
		"roles":    []string{"Usuario"},
		"permisos": map[string]bool{"escritura": false, "lectura": true},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	if body.Token == "" {
		t.Fatal("expected token in response")
	}
	if body.Message != msgRegistered {
		t.Fatalf("unexpected message: %q", body.Message)
	}

	codec, err := account.NewTokenCodec(testSecret)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	claims, err := codec.Verify(body.Token)
	if err != nil {
		t.Fatalf("Verify issued token: %v", err)
	}
	if claims.Subject != "acc-ana" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0].Nombre != "Usuario" {
		t.Fatalf("unexpected roles claim: %+v", claims.Roles)
	}
	if claims.Permisos.Escritura || !claims.Permisos.Lectura {
		t.Fatalf("unexpected permisos claim: %+v", claims.Permisos)
	}
}

func TestRegisterDuplicateEmailResponse(t *testing.T) {
	store := &stubStore{
		emailTakenFn: func(_ context.Context, email, _ string) (bool, error) {
			return true, nil
		},
	}
	api := newTestAPI(t, store)

	resp := api.post("/v1/auth/register", map[string]any{
		"nombre": "ana", "email": "a@x.com", "password": "p1",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	if body.Message != msgDuplicateEmail {
		t.Fatalf("unexpected message: %q", body.Message)
	}
}

func TestLoginEnumerationSymmetry(t *testing.T) {
	hash, err := account.HashPassword("correct", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store := &stubStore{
		findByEmailFn: func(_ context.Context, email string) (account.Account, error) {
			if email == "known@x.com" {
				return account.Account{ID: "acc-1", Email: email, PasswordHash: hash, Activo: true}, nil
			}
			return account.Account{}, account.ErrNotFound
		},
	}
	api := newTestAPI(t, store)

	read := func(resp *http.Response) (int, string) {
		var body struct {
			Message string `json:"message"`
		}
		code := resp.StatusCode
		decodeBody(t, resp, &body)
		return code, body.Message
	}

	codeUnknown, msgUnknown := read(api.post("/v1/auth/login",
		map[string]string{"email": "nobody@x.com", "password": "x"}, nil))
	codeWrongPw, msgWrongPw := read(api.post("/v1/auth/login",
		map[string]string{"email": "known@x.com", "password": "wrong"}, nil))

	if codeUnknown != http.StatusUnauthorized || codeWrongPw != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", codeUnknown, codeWrongPw)
	}
	if msgUnknown != msgWrongPw {
		t.Fatalf("messages differ: %q vs %q", msgUnknown, msgWrongPw)
	}
	if msgUnknown != msgBadCredentials {
		t.Fatalf("unexpected message: %q", msgUnknown)
	}
}

func TestAccountsRequiresToken(t *testing.T) {
	api := newTestAPI(t, &stubStore{})

	resp := api.get("/v1/accounts", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAccountsAdminListing(t *testing.T) {
	store := &stubStore{
		listActiveFn: func(_ context.Context) ([]account.ListingRow, error) {
			return []account.ListingRow{
				{ID: "acc-1", Nombre: "ana", Email: "a@x.com", Rol: "Usuario", Lectura: true},
			}, nil
		},
	}
	api := newTestAPI(t, store)
	token := issueToken(t, "admin-1", []string{"Admin"}, account.Permissions{Escritura: true, Lectura: true})

	resp := api.get("/v1/accounts", map[string]string{"Authorization": token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var listing []account.ListingRow
	decodeBody(t, resp, &listing)
	if len(listing) != 1 || listing[0].Rol != "Usuario" {
		t.Fatalf("unexpected listing: %+v", listing)
	}
}

func TestAccountsOwnProfile(t *testing.T) {
	store := &stubStore{
		profileFn: func(_ context.Context, accountID string) (account.Profile, error) {
			if accountID != "acc-7" {
				t.Fatalf("unexpected account id: %s", accountID)
			}
			return account.Profile{
				ID: accountID, Nombre: "ana", Email: "a@x.com",
				Roles:    []account.RoleClaim{{Nombre: "Usuario"}},
				Permisos: account.Permissions{Lectura: true},
			}, nil
		},
	}
	api := newTestAPI(t, store)
	token := issueToken(t, "acc-7", []string{"Usuario"}, account.Permissions{Lectura: true})

	// Bearer prefix is also accepted.
	resp := api.get("/v1/accounts", map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var profile account.Profile
	decodeBody(t, resp, &profile)
	if profile.ID != "acc-7" || len(profile.Roles) != 1 {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestAccountsOwnProfileMissing(t *testing.T) {
	api := newTestAPI(t, &stubStore{})
	token := issueToken(t, "ghost", []string{"Usuario"}, account.Permissions{})

	resp := api.get("/v1/accounts", map[string]string{"Authorization": token})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAccountsForbiddenForUnknownRole(t *testing.T) {
	api := newTestAPI(t, &stubStore{})
	token := issueToken(t, "acc-1", []string{"Auditor"}, account.Permissions{})

	resp := api.get("/v1/accounts", map[string]string{"Authorization": token})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestSetActiveGateMatrix(t *testing.T) {
	var gotID string
	var gotActive bool
	calls := 0
	store := &stubStore{
		setActiveFn: func(_ context.Context, accountID string, active bool) error {
			calls++
			gotID, gotActive = accountID, active
			return nil
		},
	}
	api := newTestAPI(t, store)

	// No token.
	resp := api.post("/v1/accounts/acc-1/deactivate", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", resp.StatusCode)
	}

	// Invalid token.
	resp = api.post("/v1/accounts/acc-1/deactivate", nil, map[string]string{"Authorization": "garbage"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", resp.StatusCode)
	}

	// Valid token without the Admin role.
	userToken := issueToken(t, "acc-2", []string{"Usuario"}, account.Permissions{})
	resp = api.post("/v1/accounts/acc-1/deactivate", nil, map[string]string{"Authorization": userToken})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", resp.StatusCode)
	}
	if calls != 0 {
		t.Fatalf("store touched before authorization: %d calls", calls)
	}

	// Admin token flips the flag.
	adminToken := issueToken(t, "admin-1", []string{"Admin"}, account.Permissions{Escritura: true, Lectura: true})
	resp = api.post("/v1/accounts/acc-1/deactivate", nil, map[string]string{"Authorization": adminToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin deactivate: expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	if body.Message != msgDeactivated {
		t.Fatalf("unexpected message: %q", body.Message)
	}
	if gotID != "acc-1" || gotActive {
		t.Fatalf("unexpected store call: %s %v", gotID, gotActive)
	}

	// Reactivation shares the same gate.
	resp = api.post("/v1/accounts/acc-1/reactivate", nil, map[string]string{"Authorization": adminToken})
	decodeBody(t, resp, &body)
	if body.Message != msgReactivated {
		t.Fatalf("unexpected message: %q", body.Message)
	}
	if gotID != "acc-1" || !gotActive {
		t.Fatalf("unexpected store call: %s %v", gotID, gotActive)
	}
}

func TestUpdateDuplicateEmailResponse(t *testing.T) {
	store := &stubStore{
		emailTakenFn: func(_ context.Context, email, excludeID string) (bool, error) {
			if excludeID != "acc-1" {
				t.Fatalf("expected exclusion of acc-1, got %q", excludeID)
			}
			return true, nil
		},
	}
	api := newTestAPI(t, store)

	resp := api.do(http.MethodPut, "/v1/accounts/acc-1", map[string]any{
		"nombre": "ana", "email": "taken@x.com", "password": "p2",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	if body.Message != msgUpdateDuplicate {
		t.Fatalf("unexpected message: %q", body.Message)
	}
}

func TestUpdateSuccess(t *testing.T) {
	var captured account.Account
	var capturedRoles []string
	store := &stubStore{
		updateAccountFn: func(_ context.Context, acc account.Account, roles []string, perms account.Permissions) error {
			captured = acc
			capturedRoles = roles
			return nil
		},
	}
	api := newTestAPI(t, store)

	resp := api.do(http.MethodPut, "/v1/accounts/acc-1", map[string]any{
		"nombre":   "ana",
		"email":    "a@x.com",
		"password": "nuevo",
		"roles":    []string{"Usuario"},
		"permisos": map[string]bool{"escritura": true, "lectura": true},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if captured.ID != "acc-1" || captured.Email != "a@x.com" {
		t.Fatalf("unexpected account: %+v", captured)
	}
	if captured.PasswordHash == "nuevo" || captured.PasswordHash == "" {
		t.Fatalf("password not re-hashed: %q", captured.PasswordHash)
	}
	if len(capturedRoles) != 1 || capturedRoles[0] != "Usuario" {
		t.Fatalf("unexpected roles: %v", capturedRoles)
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, &stubStore{})

	resp := api.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}
