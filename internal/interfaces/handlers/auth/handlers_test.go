package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	authsvc "house-marketplace/internal/application/auth"
	"house-marketplace/internal/domain"
	"house-marketplace/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUserFinder returns the configured user when the password is "password123".
type fakeUserFinder struct {
	user *domain.User
	err  error
}

func (f *fakeUserFinder) FindByEmailAndPassword(email, password string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user != nil && f.user.Email == email && password == "password123" {
		return f.user, nil
	}
	if f.user != nil && f.user.Email == email {
		return nil, authsvc.ErrIncorrectPassword
	}
	return nil, authsvc.ErrInvalidEmail
}

type fakeRegistrar struct {
	err error
	got authsvc.SignUpInput
}

func (f *fakeRegistrar) SignUp(_ context.Context, in authsvc.SignUpInput) (*domain.User, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &domain.User{UserID: uuid.New(), Name: in.Name, Email: in.Email}, nil
}

func setupAuthHandlers(t *testing.T, finder authsvc.UserFinder) (*Handlers, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	h := &Handlers{
		UserFinder: finder,
		Rdb:        rdb,
		Config:     middleware.SessionConfig{},
	}
	return h, rdb
}

func postJSON(t *testing.T, app *fiber.App, path string, v interface{}) (int, map[string]interface{}, []string) {
	t.Helper()
	body, _ := json.Marshal(v)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	_ = json.Unmarshal(b, &out)
	return resp.StatusCode, out, resp.Header.Values("Set-Cookie")
}

func TestLogin_EmptyBody(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{}})
	app := fiber.New()
	app.Post("/login", h.Login)

	req := httptest.NewRequest("POST", "/login", nil)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestLogin_MissingCredentials(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Post("/login", h.Login)

	status, _, _ := postJSON(t, app, "/login", map[string]string{"email": "a@b.com"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestLogin_BadCredentials(t *testing.T) {
	uid := uuid.New()
	h, _ := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{UserID: uid, Email: "test@example.com", Name: "Test User"}})
	app := fiber.New()
	app.Post("/login", h.Login)

	status, out, _ := postJSON(t, app, "/login", map[string]string{"email": "test@example.com", "password": "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Bad User Credentials", out["error"].(map[string]interface{})["message"])

	status, _, _ = postJSON(t, app, "/login", map[string]string{"email": "nobody@example.com", "password": "any"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestLogin_Success(t *testing.T) {
	uid := uuid.New()
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{user: &domain.User{UserID: uid, Email: "test@example.com", Name: "Test User"}})
	app := fiber.New()
	app.Post("/login", h.Login)

	status, out, cookies := postJSON(t, app, "/login", map[string]string{"email": "test@example.com", "password": "password123"})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Login successful", out["message"])
	user := out["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "test@example.com", user["email"])
	assert.Equal(t, "Test User", user["name"])

	require.NotEmpty(t, cookies)
	assert.Contains(t, cookies[0], middleware.SessionCookieName+"=")

	members, err := rdb.SMembers(context.Background(), middleware.UserSessionsPrefix+uid.String()).Result()
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestLogin_NilUserFinder(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	app := fiber.New()
	app.Post("/login", h.Login)

	status, _, _ := postJSON(t, app, "/login", map[string]string{"email": "a@b.com", "password": "pass"})
	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func TestSignUp_Success(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	reg := &fakeRegistrar{}
	h.Registrar = reg
	app := fiber.New()
	app.Post("/sign-up", h.SignUp)

	status, out, cookies := postJSON(t, app, "/sign-up", map[string]string{"name": "Ada", "email": "ada@example.com", "password": "secret-1a"})
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "ada@example.com", reg.got.Email)
	assert.Equal(t, "/", out["metadata"].(map[string]interface{})["redirect"])
	assert.NotEmpty(t, cookies)
}

func TestSignUp_Errors(t *testing.T) {
	h, _ := setupAuthHandlers(t, nil)
	app := fiber.New()
	app.Post("/sign-up", h.SignUp)

	h.Registrar = &fakeRegistrar{err: &authsvc.InputError{Message: "Invalid email format"}}
	status, out, _ := postJSON(t, app, "/sign-up", map[string]string{"email": "x"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invalid email format", out["error"].(map[string]interface{})["message"])

	h.Registrar = &fakeRegistrar{err: authsvc.ErrEmailTaken}
	status, _, _ = postJSON(t, app, "/sign-up", map[string]string{"email": "x@y.z"})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestMe_NoSession(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Get("/me", h.Me)

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMe_WithSessionUserInLocals(t *testing.T) {
	h, _ := setupAuthHandlers(t, &fakeUserFinder{})
	app := fiber.New()
	app.Get("/me", func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id": "550e8400-e29b-41d4-a716-446655440000",
			"name":    "Test",
			"email":   "test@example.com",
		})
		return h.Me(c)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	user := out["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "Test", user["name"])
}

func TestLogout_RemovesSession(t *testing.T) {
	h, rdb := setupAuthHandlers(t, &fakeUserFinder{})
	ctx := context.Background()
	uid := uuid.New().String()
	require.NoError(t, rdb.Set(ctx, middleware.SessionRedisPrefix+"sid-1", `{"user":{}}`, 0).Err())
	require.NoError(t, rdb.SAdd(ctx, middleware.UserSessionsPrefix+uid, "sid-1").Err())

	app := fiber.New()
	app.Delete("/logout", func(c *fiber.Ctx) error {
		c.Locals("session_id", "sid-1")
		c.Locals("user", map[string]interface{}{"user_id": uid})
		return h.Logout(c)
	})

	resp, err := app.Test(httptest.NewRequest("DELETE", "/logout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Values("Set-Cookie"))

	n, err := rdb.Exists(ctx, middleware.SessionRedisPrefix+"sid-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	members, _ := rdb.SMembers(ctx, middleware.UserSessionsPrefix+uid).Result()
	assert.Empty(t, members)
}
