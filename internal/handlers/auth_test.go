package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medlab/diagnosis-backend/internal/handlers"
	authmw "github.com/medlab/diagnosis-backend/internal/middleware/auth"
	"github.com/medlab/diagnosis-backend/internal/models"
	"github.com/medlab/diagnosis-backend/internal/repo"
	"github.com/medlab/diagnosis-backend/internal/tokens"
	httpserver "github.com/medlab/diagnosis-backend/internal/transport/http"
)

type testEnv struct {
	e     *echo.Echo
	db    *gorm.DB
	users *repo.UserRepo
	codec *tokens.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Patient{}, &models.Consultant{}, &models.LabTest{},
		&models.Order{}, &models.OrderTest{}, &models.TestReport{}, &models.Billing{},
	))

	users := &repo.UserRepo{DB: db}
	codec := &tokens.Codec{
		Secret:        []byte("test-secret"),
		AccessExpire:  30 * time.Minute,
		RefreshExpire: 7 * 24 * time.Hour,
	}
	resolver := &authmw.Resolver{Users: users, Codec: codec}

	e := echo.New()
	httpserver.Register(e, &httpserver.Deps{
		Resolver: resolver,
		AuthHandler: &handlers.AuthHandler{
			Users:          users,
			Codec:          codec,
			CookieSameSite: http.SameSiteLaxMode,
		},
		UserHandler:       &handlers.UserHandler{Users: users},
		PatientHandler:    &handlers.PatientHandler{DB: db},
		ConsultantHandler: &handlers.ConsultantHandler{DB: db},
		LabTestHandler:    &handlers.LabTestHandler{DB: db},
		OrderHandler:      &handlers.OrderHandler{DB: db},
		ReportHandler:     &handlers.ReportHandler{DB: db},
		BillingHandler:    &handlers.BillingHandler{DB: db},
		SearchHandler:     &handlers.SearchHandler{Index: "patients"},
	})

	return &testEnv{e: e, db: db, users: users, codec: codec}
}

func (env *testEnv) request(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) signup(t *testing.T, username, password, role string) {
	body := fmt.Sprintf(`{"username":%q,"password":%q,"full_name":"Test User","role":%q}`,
		username, password, role)
	rec := env.request(t, http.MethodPost, "/v1/auth/signup", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (env *testEnv) login(t *testing.T, username, password string) (access, refresh string) {
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	rec := env.request(t, http.MethodPost, "/v1/auth/login", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "bearer", resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Greater(t, resp.ExpiresIn, 0)
	return resp.AccessToken, resp.RefreshToken
}

func refreshBody(token string) string {
	return fmt.Sprintf(`{"refresh_token":%q}`, token)
}

func TestSignupDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)

	body := `{"username":"alice","password":"other-password","full_name":"Alice Again","role":"ADMIN"}`
	rec := env.request(t, http.MethodPost, "/v1/auth/signup", body, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "already registered")
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []string{
		`{"username":"ab","password":"secret123","full_name":"Short Name","role":"ADMIN"}`,
		`{"username":"validname","password":"pw","full_name":"Short Pass","role":"ADMIN"}`,
		`{"username":"validname","password":"secret123","full_name":"X","role":"ADMIN"}`,
		`{"username":"validname","password":"secret123","full_name":"Bad Role","role":"SUPERUSER"}`,
	}
	for _, body := range cases {
		rec := env.request(t, http.MethodPost, "/v1/auth/signup", body, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)

	rec := env.request(t, http.MethodPost, "/v1/auth/login",
		`{"username":"alice","password":"wrong-password"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/auth/login",
		`{"username":"nobody","password":"secret123"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginSetsCookies(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)

	rec := env.request(t, http.MethodPost, "/v1/auth/login",
		`{"username":"alice","password":"secret123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	names := map[string]bool{}
	for _, cookie := range rec.Result().Cookies() {
		names[cookie.Name] = true
		require.True(t, cookie.HttpOnly)
	}
	require.True(t, names[authmw.AccessCookie])
	require.True(t, names[authmw.RefreshCookie])
}

func TestRefreshFlow(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)
	_, refresh := env.login(t, "alice", "secret123")

	rec := env.request(t, http.MethodPost, "/v1/auth/refresh", refreshBody(refresh), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// The fresh access token works against a protected route.
	rec = env.request(t, http.MethodGet, "/v1/auth/me", "", resp.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)
	access, _ := env.login(t, "alice", "secret123")

	rec := env.request(t, http.MethodPost, "/v1/auth/refresh", refreshBody(access), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)
	access, refresh := env.login(t, "alice", "secret123")

	rec := env.request(t, http.MethodPost, "/v1/auth/logout", "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	// The refresh token still carries a valid signature but is no longer stored.
	rec = env.request(t, http.MethodPost, "/v1/auth/refresh", refreshBody(refresh), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// A second logout is a no-op, not an error.
	rec = env.request(t, http.MethodPost, "/v1/auth/logout", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSecondLoginInvalidatesFirstRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)
	_, firstRefresh := env.login(t, "alice", "secret123")
	_, secondRefresh := env.login(t, "alice", "secret123")

	rec := env.request(t, http.MethodPost, "/v1/auth/refresh", refreshBody(firstRefresh), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/auth/refresh", refreshBody(secondRefresh), "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)
	access, refresh := env.login(t, "alice", "secret123")

	rec := env.request(t, http.MethodPost, "/v1/auth/change-password",
		`{"current_password":"wrong-password","new_password":"newsecret1"}`, access)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The failed attempt must not disturb the session.
	rec = env.request(t, http.MethodPost, "/v1/auth/refresh", refreshBody(refresh), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/auth/change-password",
		`{"current_password":"secret123","new_password":"newsecret1"}`, access)
	require.Equal(t, http.StatusOK, rec.Code)

	// Old credentials and the old refresh token are both dead.
	rec = env.request(t, http.MethodPost, "/v1/auth/login",
		`{"username":"alice","password":"secret123"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/auth/refresh", refreshBody(refresh), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	env.login(t, "alice", "newsecret1")
}

func TestMeAndUpdateMe(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)
	access, _ := env.login(t, "alice", "secret123")

	rec := env.request(t, http.MethodGet, "/v1/auth/me", "", access)
	require.Equal(t, http.StatusOK, rec.Code)

	var me models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, "alice", me.Username)
	require.NotContains(t, rec.Body.String(), "password")

	rec = env.request(t, http.MethodPatch, "/v1/auth/me", `{"full_name":"Alice Renamed"}`, access)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Alice Renamed")
}

func TestDeactivatedUserLosesAccess(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret123", models.RoleLabAssistant)
	env.signup(t, "root_admin", "secret123", models.RoleAdmin)
	aliceAccess, aliceRefresh := env.login(t, "alice", "secret123")
	adminAccess, _ := env.login(t, "root_admin", "secret123")

	alice, err := env.users.FindByUsername(t.Context(), "alice")
	require.NoError(t, err)

	rec := env.request(t, http.MethodPost, "/v1/admin/users/"+alice.ID.String()+"/deactivate", "", adminAccess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Still-valid tokens stop working once the row goes inactive.
	rec = env.request(t, http.MethodGet, "/v1/auth/me", "", aliceAccess)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/auth/refresh", refreshBody(aliceRefresh), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.request(t, http.MethodPost, "/v1/auth/login",
		`{"username":"alice","password":"secret123"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "assistant1", "secret123", models.RoleLabAssistant)
	env.signup(t, "root_admin", "secret123", models.RoleAdmin)
	assistantAccess, _ := env.login(t, "assistant1", "secret123")
	adminAccess, _ := env.login(t, "root_admin", "secret123")

	rec := env.request(t, http.MethodGet, "/v1/admin/users", "", assistantAccess)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(t, http.MethodGet, "/v1/admin/users", "", adminAccess)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/v1/admin/users", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
