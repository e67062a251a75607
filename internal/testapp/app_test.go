package testapp

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/aurora-verify/internal/ratelimit"
)

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func startApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	app := New()
	app.AddUser("user1@example.com", "password", "User One")
	app.AddUser("user2@example.com", "password", "User Two")
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return app, srv
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func login(t *testing.T, c *http.Client, base, email string) *http.Response {
	t.Helper()
	resp, err := c.PostForm(base+"/login", url.Values{"email": {email}, "password": {"password"}})
	require.NoError(t, err)
	return resp
}

func TestLoginPage_HasForm(t *testing.T) {
	t.Parallel()
	_, srv := startApp(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	html := body(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, want := range []string{
		"<title>aurora-academic-flow</title>",
		"<h1>Aurora</h1>",
		`id="auth-email"`,
		`id="auth-password"`,
		"Sign In with Email",
	} {
		require.Contains(t, html, want)
	}
}

func TestLogin_WrongPasswordStaysOnForm(t *testing.T) {
	t.Parallel()
	_, srv := startApp(t)
	c := newClient(t)

	resp, err := c.PostForm(srv.URL+"/login", url.Values{"email": {"user1@example.com"}, "password": {"nope"}})
	require.NoError(t, err)
	html := body(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, html, "Invalid email or password")
	require.Contains(t, html, `value="user1@example.com"`)
}

func TestDashboard_RequiresSession(t *testing.T) {
	t.Parallel()
	_, srv := startApp(t)
	c := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := c.Get(srv.URL + "/dashboard")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestCreateAndJoinGroup(t *testing.T) {
	t.Parallel()
	app, srv := startApp(t)
	owner := newClient(t)
	joiner := newClient(t)

	resp := login(t, owner, srv.URL, "user1@example.com")
	require.Contains(t, body(t, resp), "Enable Notifications")
	require.Equal(t, "/dashboard", resp.Request.URL.Path)

	resp, err := owner.PostForm(srv.URL+"/groups", url.Values{"name": {"Test Group"}})
	require.NoError(t, err)
	ownerPage := body(t, resp)

	groups := app.GroupsOf("user1@example.com")
	require.Len(t, groups, 1)
	code := groups[0].Code
	require.Contains(t, ownerPage, "<code>"+code+"</code>")
	require.Contains(t, ownerPage, `data-testid="group-card-`+code+`"`)

	body(t, login(t, joiner, srv.URL, "user2@example.com"))
	resp, err = joiner.PostForm(srv.URL+"/groups/join", url.Values{"code": {code}})
	require.NoError(t, err)
	joinerPage := body(t, resp)
	require.Contains(t, joinerPage, "<h3>Test Group</h3>")
	require.NotContains(t, joinerPage, "<code>", "members do not see the join code")
	require.Equal(t, []string{"user1@example.com", "user2@example.com"}, app.Members(code))

	resp, err = joiner.Get(srv.URL + "/groups/" + code + "/chat")
	require.NoError(t, err)
	require.Contains(t, body(t, resp), `placeholder="Type a message..."`)
}

func TestJoinGroup_InvalidCodeChangesNothing(t *testing.T) {
	t.Parallel()
	app, srv := startApp(t)
	code := app.CreateGroup("user1@example.com", "Study")
	c := newClient(t)
	body(t, login(t, c, srv.URL, "user2@example.com"))

	resp, err := c.PostForm(srv.URL+"/groups/join", url.Values{"code": {"FAKECODE"}})
	require.NoError(t, err)
	require.Contains(t, body(t, resp), "Invalid join code")
	require.Equal(t, "invalid_code", resp.Request.URL.Query().Get("error"))
	require.Equal(t, []string{"user1@example.com"}, app.Members(code))
	require.Empty(t, app.GroupsOf("user2@example.com"))
}

func TestSessions_AreIndependent(t *testing.T) {
	t.Parallel()
	_, srv := startApp(t)
	a := newClient(t)
	b := newClient(t)

	body(t, login(t, a, srv.URL, "user1@example.com"))
	resp, err := b.Get(srv.URL + "/dashboard")
	require.NoError(t, err)
	require.Contains(t, body(t, resp), "Sign In with Email", "second client must land on the login form")
}

func testGroupsOf_NewestFirst(t *rapid.T) {
	app := New()
	names := rapid.SliceOfN(rapid.StringMatching(`[A-Za-z ]{1,12}`), 1, 8).Draw(t, "names")
	var codes []string
	for _, n := range names {
		code := app.CreateGroup("Owner@Example.com", n)
		if len(code) != 8 || code != strings.ToUpper(code) {
			t.Fatalf("join code %q is not 8 uppercase characters", code)
		}
		codes = append(codes, code)
	}
	got := app.GroupsOf("owner@example.com")
	if len(got) != len(codes) {
		t.Fatalf("got %d groups, want %d", len(got), len(codes))
	}
	for i, g := range got {
		if want := codes[len(codes)-1-i]; g.Code != want {
			t.Fatalf("position %d: got %s, want %s", i, g.Code, want)
		}
	}
}

func TestLimitActions_ThrottlesPosts(t *testing.T) {
	t.Parallel()
	app := New()
	app.AddUser("user1@example.com", "password", "User One")
	app.LimitActions(ratelimit.Config{ActionsPerSecond: 0.001, Burst: 2})
	t.Cleanup(app.Close)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	bad := url.Values{"email": {"user1@example.com"}, "password": {"nope"}}
	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := http.PostForm(srv.URL+"/login", bad)
		require.NoError(t, err)
		body(t, resp)
		codes = append(codes, resp.StatusCode)
	}
	require.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)

	// Page loads are never throttled.
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		body(t, resp)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestGroupsOf_NewestFirst(t *testing.T) {
	rapid.Check(t, testGroupsOf_NewestFirst)
}
