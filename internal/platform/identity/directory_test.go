package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carewise/opsdesk/internal/platform/auth"
)

// fakeSets is an in-memory stand-in for the Redis set commands.
type fakeSets struct {
	sets    map[string]map[string]struct{}
	readErr error
}

func newFakeSets() *fakeSets {
	return &fakeSets{sets: make(map[string]map[string]struct{})}
}

func (f *fakeSets) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	if f.readErr != nil {
		return redis.NewStringSliceResult(nil, f.readErr)
	}
	s, ok := f.sets[key]
	if !ok {
		return redis.NewStringSliceResult([]string{}, nil)
	}
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeSets) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]struct{})
		f.sets[key] = s
	}
	for _, m := range members {
		s[m.(string)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeSets) SRem(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	for _, m := range members {
		delete(f.sets[key], m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func TestRedisDirectory_RegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	dir := NewRedisDirectory(newFakeSets())

	require.NoError(t, dir.Register(ctx, Registration{Identity: "ceo", Token: "tok-b", Departments: []string{"billing"}}))
	require.NoError(t, dir.Register(ctx, Registration{Identity: "ceo", Token: "tok-a"}))

	tokens, err := dir.TokensForIdentity(ctx, "ceo")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a", "tok-b"}, tokens)

	members, err := dir.TokensForDepartmentMembers(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-b"}, members)
}

func TestRedisDirectory_UnknownIdentityIsEmpty(t *testing.T) {
	tokens, err := NewRedisDirectory(newFakeSets()).TokensForIdentity(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestRedisDirectory_NilReplyIsEmpty(t *testing.T) {
	sets := newFakeSets()
	sets.readErr = redis.Nil
	tokens, err := NewRedisDirectory(sets).TokensForIdentity(context.Background(), "gm")
	require.NoError(t, err)
	assert.Nil(t, tokens)
}

func TestRedisDirectory_ReadError(t *testing.T) {
	sets := newFakeSets()
	sets.readErr = errors.New("connection reset")
	_, err := NewRedisDirectory(sets).TokensForDepartmentMembers(context.Background(), "billing")
	assert.Error(t, err)
}

func TestRedisDirectory_Unregister(t *testing.T) {
	ctx := context.Background()
	dir := NewRedisDirectory(newFakeSets())
	reg := Registration{Identity: "hod", Token: "tok", Departments: []string{"nursing"}}
	require.NoError(t, dir.Register(ctx, reg))
	require.NoError(t, dir.Unregister(ctx, reg))

	tokens, _ := dir.TokensForIdentity(ctx, "hod")
	assert.Empty(t, tokens)
	members, _ := dir.TokensForDepartmentMembers(ctx, "nursing")
	assert.Empty(t, members)
}

func TestRegistration_Validate(t *testing.T) {
	assert.Error(t, Registration{Token: "t"}.Validate())
	assert.Error(t, Registration{Identity: "x", Token: "  "}.Validate())
	assert.NoError(t, Registration{Identity: "x", Token: "t"}.Validate())
}

func TestStaticDirectory(t *testing.T) {
	ctx := context.Background()
	dir := NewStaticDirectory()
	require.NoError(t, dir.Register(ctx, Registration{Identity: "coo", Token: "t1", Departments: []string{"it"}}))
	require.NoError(t, dir.Register(ctx, Registration{Identity: "coo", Token: "t2"}))

	tokens, _ := dir.TokensForIdentity(ctx, "coo")
	assert.Equal(t, []string{"t1", "t2"}, tokens)

	members, _ := dir.TokensForDepartmentMembers(ctx, "it")
	assert.Equal(t, []string{"t1"}, members)

	require.NoError(t, dir.Unregister(ctx, Registration{Identity: "coo", Token: "t1", Departments: []string{"it"}}))
	tokens, _ = dir.TokensForIdentity(ctx, "coo")
	assert.Equal(t, []string{"t2"}, tokens)

	none, _ := dir.TokensForIdentity(ctx, "ceo")
	assert.Nil(t, none)
}

func knownDepartment(d string) bool { return d == "billing" || d == "it" }

func registerRequest(body, uid string, roles ...string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/push-tokens", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, uid)
	ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
	return req.WithContext(ctx)
}

func TestHandler_RegisterUsesCallerIdentity(t *testing.T) {
	dir := NewStaticDirectory()
	h := NewHandler(dir, knownDepartment)

	e := echo.New()
	rec := httptest.NewRecorder()
	req := registerRequest(`{"identity":"someone-else","token":"tok-1"}`, "staff-7", auth.RoleStaff)

	require.NoError(t, h.HandleRegister(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	tokens, _ := dir.TokensForIdentity(context.Background(), "staff-7")
	assert.Equal(t, []string{"tok-1"}, tokens)
	other, _ := dir.TokensForIdentity(context.Background(), "someone-else")
	assert.Empty(t, other)
}

func TestHandler_DepartmentRegistration(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		roles []string
		want  int
	}{
		{"staff cannot join a department", `{"token":"tok-1","departments":["billing"]}`, []string{auth.RoleStaff}, http.StatusForbidden},
		{"admin with unknown department", `{"identity":"tech-1","token":"tok-1","departments":["payroll"]}`, []string{auth.RoleAdmin}, http.StatusBadRequest},
		{"admin registers department member", `{"identity":"tech-1","token":"tok-1","departments":["billing"]}`, []string{auth.RoleAdmin}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := NewStaticDirectory()
			h := NewHandler(dir, knownDepartment)
			e := echo.New()
			rec := httptest.NewRecorder()

			err := h.HandleRegister(e.NewContext(registerRequest(tt.body, "caller-1", tt.roles...), rec))
			if tt.want != http.StatusCreated {
				var httpErr *echo.HTTPError
				require.True(t, errors.As(err, &httpErr))
				assert.Equal(t, tt.want, httpErr.Code)
				members, _ := dir.TokensForDepartmentMembers(context.Background(), "billing")
				assert.Empty(t, members)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Code)
			members, _ := dir.TokensForDepartmentMembers(context.Background(), "billing")
			assert.Equal(t, []string{"tok-1"}, members)
			tokens, _ := dir.TokensForIdentity(context.Background(), "tech-1")
			assert.Equal(t, []string{"tok-1"}, tokens)
		})
	}
}

func TestHandler_RegisterMissingToken(t *testing.T) {
	h := NewHandler(NewStaticDirectory(), knownDepartment)
	e := echo.New()
	rec := httptest.NewRecorder()

	err := h.HandleRegister(e.NewContext(registerRequest(`{"identity":"x"}`, "staff-7", auth.RoleStaff), rec))
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}
