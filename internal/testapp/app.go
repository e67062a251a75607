// Package testapp serves a small in-process stand-in for the Aurora web
// app: email sign-in, a dashboard with group create/join, and group chat.
// Browser integration tests run scenarios against it.
package testapp

import (
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/aurora-verify/internal/obs"
	"github.com/kuitang/aurora-verify/internal/ratelimit"
)

const (
	// SessionCookieName holds the signed-in user's session id.
	SessionCookieName = "session_id"

	// Title is the document title of every page.
	Title = "aurora-academic-flow"
)

type user struct {
	email    string
	password string
	name     string
}

// Group is one study group.
type Group struct {
	Code      string
	Name      string
	Owner     string
	Members   []string
	CreatedAt time.Time
}

// App is the fake application state. All methods are safe for concurrent use.
type App struct {
	mu       sync.Mutex
	users    map[string]user
	sessions map[string]string // session id -> email
	groups   map[string]*Group // join code -> group
	seq      int
	tmpl     *template.Template
	limiter  *ratelimit.Pacer
}

// New returns an empty app.
func New() *App {
	return &App{
		users:    make(map[string]user),
		sessions: make(map[string]string),
		groups:   make(map[string]*Group),
		tmpl:     template.Must(template.New("base").Parse(pageTemplates)),
	}
}

// AddUser registers an account that can sign in.
func (a *App) AddUser(email, password, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[strings.ToLower(email)] = user{email: email, password: password, name: name}
}

// LimitActions throttles form posts per session (or per remote address
// before sign-in). Must be called before Handler.
func (a *App) LimitActions(cfg ratelimit.Config) {
	a.limiter = ratelimit.NewPacer(cfg)
}

// Close releases the action limiter, if any.
func (a *App) Close() {
	a.limiter.Stop()
}

func actionKey(r *http.Request) string {
	if r.Method != http.MethodPost {
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return "session:" + c.Value
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

// CreateGroup creates a group owned by ownerEmail and returns its join code.
func (a *App) CreateGroup(ownerEmail, name string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.createGroupLocked(strings.ToLower(ownerEmail), name)
}

func (a *App) createGroupLocked(owner, name string) string {
	code := strings.ToUpper(uuid.NewString()[:8])
	// seq keeps ordering stable when two groups share a timestamp.
	a.seq++
	a.groups[code] = &Group{
		Code:      code,
		Name:      name,
		Owner:     owner,
		Members:   []string{owner},
		CreatedAt: time.Now().Add(time.Duration(a.seq)),
	}
	return code
}

// Members returns the member emails of the group with code.
func (a *App) Members(code string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[code]
	if !ok {
		return nil
	}
	return append([]string(nil), g.Members...)
}

// GroupsOf returns the groups email belongs to, newest first.
func (a *App) GroupsOf(email string) []Group {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.groupsOfLocked(strings.ToLower(email))
}

func (a *App) groupsOfLocked(email string) []Group {
	var out []Group
	for _, g := range a.groups {
		for _, m := range g.Members {
			if m == email {
				cp := *g
				cp.Members = append([]string(nil), g.Members...)
				out = append(out, cp)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Handler returns the app's routes wrapped in access logging.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleHome)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("POST /logout", a.handleLogout)
	mux.HandleFunc("GET /dashboard", a.handleDashboard)
	mux.HandleFunc("POST /groups", a.handleCreateGroup)
	mux.HandleFunc("POST /groups/join", a.handleJoinGroup)
	mux.HandleFunc("GET /groups/{code}/chat", a.handleChat)
	var h http.Handler = mux
	if a.limiter != nil {
		h = ratelimit.Middleware(a.limiter, actionKey)(h)
	}
	return obs.AccessLogMiddleware("testapp", h)
}

// =============================================================================
// Handlers
// =============================================================================

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.currentUser(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	a.render(w, http.StatusOK, "login", map[string]any{"Title": Title, "Email": ""})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	password := r.FormValue("password")

	a.mu.Lock()
	u, ok := a.users[email]
	var sessionID string
	if ok && u.password == password {
		sessionID = uuid.NewString()
		a.sessions[sessionID] = email
	}
	a.mu.Unlock()

	if sessionID == "" {
		a.render(w, http.StatusUnauthorized, "login", map[string]any{
			"Title": Title,
			"Error": "Invalid email or password",
			"Email": email,
		})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		a.mu.Lock()
		delete(a.sessions, c.Value)
		a.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type groupView struct {
	Code    string
	Name    string
	IsOwner bool
}

func (a *App) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	a.mu.Lock()
	groups := a.groupsOfLocked(strings.ToLower(u.email))
	a.mu.Unlock()

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{Code: g.Code, Name: g.Name, IsOwner: g.Owner == strings.ToLower(u.email)})
	}
	data := map[string]any{
		"Title":  Title,
		"Name":   u.name,
		"Groups": views,
	}
	if r.URL.Query().Get("error") == "invalid_code" {
		data["Error"] = "Invalid join code"
	}
	a.render(w, http.StatusOK, "dashboard", data)
}

func (a *App) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	a.CreateGroup(u.email, name)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (a *App) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(r.FormValue("code")))
	email := strings.ToLower(u.email)

	a.mu.Lock()
	g, found := a.groups[code]
	if found {
		member := false
		for _, m := range g.Members {
			if m == email {
				member = true
				break
			}
		}
		if !member {
			g.Members = append(g.Members, email)
		}
	}
	a.mu.Unlock()

	if !found {
		obs.From(r.Context()).Info("join_rejected", "pkg", "testapp", "code", code)
		http.Redirect(w, r, "/dashboard?error=invalid_code", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (a *App) handleChat(w http.ResponseWriter, r *http.Request) {
	u, ok := a.currentUser(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	code := r.PathValue("code")
	var name string
	for _, g := range a.GroupsOf(u.email) {
		if g.Code == code {
			name = g.Name
		}
	}
	if name == "" {
		http.NotFound(w, r)
		return
	}
	a.render(w, http.StatusOK, "chat", map[string]any{"Title": Title, "Group": name, "Name": u.name})
}

func (a *App) currentUser(r *http.Request) (user, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return user{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	email, ok := a.sessions[c.Value]
	if !ok {
		return user{}, false
	}
	u, ok := a.users[email]
	return u, ok
}

func (a *App) render(w http.ResponseWriter, status int, page string, data map[string]any) {
	var b strings.Builder
	if err := a.tmpl.ExecuteTemplate(&b, page, data); err != nil {
		http.Error(w, fmt.Sprintf("render %s: %v", page, err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(b.String()))
}

const pageTemplates = `
{{define "head"}}<!doctype html>
<html lang="en"><head><meta charset="utf-8"><title>{{.Title}}</title></head><body>{{end}}

{{define "foot"}}</body></html>{{end}}

{{define "login"}}{{template "head" .}}
<main>
  <h1>Aurora</h1>
  {{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
  <form method="post" action="/login">
    <label for="auth-email">Email</label>
    <input id="auth-email" name="email" type="email" value="{{.Email}}">
    <label for="auth-password">Password</label>
    <input id="auth-password" name="password" type="password">
    <button type="submit">Sign In with Email</button>
  </form>
</main>
{{template "foot" .}}{{end}}

{{define "dashboard"}}{{template "head" .}}
<main>
  <h2>Tasks</h2>
  <p>Signed in as {{.Name}}</p>
  <button type="button" onclick="this.textContent='Notifications Enabled'">Enable Notifications</button>
  <button type="button">Groups</button>
  <form method="post" action="/groups">
    <input name="name" placeholder="Group name">
    <button type="submit">Create Group</button>
  </form>
  <form method="post" action="/groups/join">
    <input name="code" placeholder="Enter group join code">
    <button type="submit">Join Group</button>
  </form>
  {{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
  <section>
  {{range .Groups}}
    <div class="card" data-testid="group-card-{{.Code}}">
      <h3>{{.Name}}</h3>
      {{if .IsOwner}}<code>{{.Code}}</code>{{end}}
      <form method="get" action="/groups/{{.Code}}/chat"><button type="submit">Open Chat</button></form>
    </div>
  {{end}}
  </section>
</main>
{{template "foot" .}}{{end}}

{{define "chat"}}{{template "head" .}}
<main>
  <h2>{{.Group}}</h2>
  <p>{{.Name}}</p>
  <input type="text" placeholder="Type a message...">
</main>
{{template "foot" .}}{{end}}
`
