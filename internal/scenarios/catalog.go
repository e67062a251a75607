// Package scenarios holds the built-in verification flows for the Aurora
// web app.
package scenarios

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kuitang/aurora-verify/internal/browser"
	"github.com/kuitang/aurora-verify/internal/config"
	"github.com/kuitang/aurora-verify/internal/errs"
	"github.com/kuitang/aurora-verify/internal/scenario"
)

// Built-in scenario names.
const (
	Notification     = "notification"
	Join             = "join"
	Layout           = "layout"
	TaskNotification = "task-notification"
	UsernameDisplay  = "username-display"
)

const (
	loginWait     = 30 * time.Second
	dashboardWait = 60 * time.Second
	layoutWait    = 120 * time.Second
	appWait       = 10 * time.Second
	signupSettle  = 3 * time.Second
)

// Builtin returns every built-in scenario configured from cfg. Values that
// must be unique per run, such as the sign-up email, are generated here.
func Builtin(cfg *config.Config) []scenario.Scenario {
	return []scenario.Scenario{
		notificationScenario(),
		joinScenario(cfg.GroupName),
		layoutScenario(),
		taskNotificationScenario(config.UniqueEmail("test-user")),
		usernameDisplayScenario(),
	}
}

// Select picks scenarios by name, keeping the requested order. No names
// selects all of them. Unknown names are an invalid_argument error.
func Select(all []scenario.Scenario, names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]scenario.Scenario, len(all))
	for _, sc := range all {
		byName[sc.Name] = sc
	}
	var out []scenario.Scenario
	var unknown []string
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		sc, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, sc)
	}
	if len(unknown) > 0 {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown scenario(s) %s; available: %s",
			strings.Join(unknown, ", "), strings.Join(Names(all), ", ")))
	}
	return out, nil
}

// Merge appends extra scenarios, replacing built-ins with the same name.
func Merge(base, extra []scenario.Scenario) []scenario.Scenario {
	out := append([]scenario.Scenario(nil), base...)
	index := make(map[string]int, len(out))
	for i, sc := range out {
		index[sc.Name] = i
	}
	for _, sc := range extra {
		if i, ok := index[sc.Name]; ok {
			out[i] = sc
			continue
		}
		index[sc.Name] = len(out)
		out = append(out, sc)
	}
	return out
}

// Names returns the sorted scenario names.
func Names(all []scenario.Scenario) []string {
	names := make([]string, 0, len(all))
	for _, sc := range all {
		names = append(names, sc.Name)
	}
	sort.Strings(names)
	return names
}

// loginSteps signs actor in through the email form and waits for the
// dashboard.
func loginSteps(actor string) []scenario.Step {
	return []scenario.Step{
		{Name: actor + " opens app", Actor: actor, Action: scenario.Navigate, Value: "/"},
		{Name: actor + " sees login form", Actor: actor, Action: scenario.Wait,
			Locator: browser.ByCSS(`input[name="email"]`, ""), Timeout: loginWait},
		{Actor: actor, Action: scenario.Fill, Locator: browser.ByLabel("Email"), Value: "${" + actor + ".email}"},
		{Actor: actor, Action: scenario.Fill, Locator: browser.ByLabel("Password"), Value: "${" + actor + ".password}"},
		{Name: actor + " signs in", Actor: actor, Action: scenario.Click, Locator: browser.ByRole("button", "Sign In with Email")},
		{Name: actor + " reaches dashboard", Actor: actor, Action: scenario.AssertURL, Value: "/dashboard", Timeout: dashboardWait},
	}
}

func notificationScenario() scenario.Scenario {
	steps := loginSteps("user1")
	steps = append(steps,
		scenario.Step{Action: scenario.Wait, Locator: browser.ByRole("button", "Enable Notifications")},
		scenario.Step{Action: scenario.Screenshot, Path: "notification_button.png"},
		scenario.Step{Action: scenario.Click, Locator: browser.ByRole("button", "Enable Notifications")},
		scenario.Step{Action: scenario.Fill, Locator: browser.ByPlaceholder("Enter group join code"), Value: "FAKECODE"},
		scenario.Step{Action: scenario.Click, Locator: browser.ByRole("button", "Join Group")},
		scenario.Step{Name: "invalid code rejected", Action: scenario.Wait, Locator: browser.ByText("Invalid join code")},
	)
	return scenario.Scenario{
		Name:        Notification,
		Description: "Dashboard offers notifications and rejects an invalid join code",
		Steps:       steps,
		SuccessShot: "join_group_error.png",
	}
}

func joinScenario(groupName string) scenario.Scenario {
	steps := loginSteps("user1")
	steps = append(steps,
		scenario.Step{Actor: "user1", Action: scenario.Fill, Locator: browser.ByPlaceholder("Group name"), Value: "${group}"},
		scenario.Step{Name: "user1 creates group", Actor: "user1", Action: scenario.Click, Locator: browser.ByRole("button", "Create Group")},
		scenario.Step{Name: "user1 reads join code", Actor: "user1", Action: scenario.ReadText,
			Locator: browser.ByCSS("code", ""), SaveAs: "join_code", Timeout: loginWait},
		scenario.Step{Actor: "user1", Action: scenario.Screenshot, Path: "user1_creates_group.png"},
	)
	steps = append(steps, loginSteps("user2")...)
	steps = append(steps,
		scenario.Step{Actor: "user2", Action: scenario.Fill, Locator: browser.ByPlaceholder("Enter group join code"), Value: "${join_code}"},
		scenario.Step{Name: "user2 joins group", Actor: "user2", Action: scenario.Click, Locator: browser.ByRole("button", "Join Group")},
		scenario.Step{Name: "user2 sees group", Actor: "user2", Action: scenario.Wait, Locator: browser.ByText("${group}"), Timeout: loginWait},
	)
	return scenario.Scenario{
		Name:        Join,
		Description: "A group created by one user can be joined by another with its join code",
		Vars:        map[string]string{"group": groupName},
		Steps:       steps,
		FinalActor:  "user2",
		SuccessShot: "user2_joins_group.png",
	}
}

func layoutScenario() scenario.Scenario {
	return scenario.Scenario{
		Name:        Layout,
		Description: "Home page renders its main heading at desktop size",
		Viewport:    browser.Viewport{Width: 1920, Height: 1080},
		Steps: []scenario.Step{
			{Action: scenario.Navigate, Value: "/"},
			{Name: "heading visible", Action: scenario.Wait, Locator: browser.ByRole("heading", "Aurora"), Timeout: layoutWait},
		},
		SuccessShot: "verification.png",
	}
}

func taskNotificationScenario(email string) scenario.Scenario {
	authName := browser.ByID("auth-name")
	authEmail := browser.ByID("auth-email")
	authPassword := browser.ByID("auth-password")
	toast := browser.ByText("Task added successfully!")
	overdueCard := browser.ByCSS(".card", "Overdue Task!")

	return scenario.Scenario{
		Name:        TaskNotification,
		Description: "A task due in the past shows up as overdue",
		Vars: map[string]string{
			"email":    email,
			"password": "password123",
			"name":     "Test User",
		},
		Steps: []scenario.Step{
			{Action: scenario.Navigate, Value: "/"},
			{Action: scenario.Click, Locator: browser.ByRole("button", "Sign up here")},
			{Action: scenario.Fill, Locator: authName, Value: "${name}"},
			{Action: scenario.Fill, Locator: authEmail, Value: "${email}"},
			{Action: scenario.Fill, Locator: authPassword, Value: "${password}"},
			{Name: "create account", Action: scenario.Click, Locator: browser.ByRole("button", "Create Account")},
			{Action: scenario.Pause, Duration: signupSettle},
			{Action: scenario.Screenshot, Path: "signup_debug.png"},
			{Action: scenario.Fill, Locator: authEmail, Value: "${email}"},
			{Action: scenario.Fill, Locator: authPassword, Value: "${password}"},
			{Name: "sign in", Action: scenario.Click, Locator: browser.ByRole("button", "Sign In")},
			{Name: "tasks visible", Action: scenario.Wait, Locator: browser.ByRole("heading", "Tasks"), Timeout: appWait},
			{Action: scenario.Click, Locator: browser.ByRole("button", "Add Task")},
			{Action: scenario.Fill, Locator: browser.ByLabel("Title *"), Value: "Overdue Task"},
			{Action: scenario.Fill, Locator: browser.ByLabel("Description"), Value: "This task should be overdue."},
			{Action: scenario.Click, Locator: browser.ByRole("button", "Select due date")},
			{Name: "previous month", Action: scenario.Click, Locator: browser.ByRole("button", "‹")},
			{Name: "pick day", Action: scenario.Click, Locator: browser.ByRole("gridcell", "15")},
			{Name: "submit task", Action: scenario.Click, Locator: browser.ByRole("button", "Add Task")},
			{Name: "toast shown", Action: scenario.Wait, Locator: toast},
			{Name: "toast gone", Action: scenario.Wait, Locator: toast, Condition: browser.Hidden},
			{Name: "overdue card", Action: scenario.Wait, Locator: overdueCard},
			{Action: scenario.Wait, Locator: browser.ByCSS("h3", "Overdue Task").In(overdueCard)},
		},
		SuccessShot: "task_notification.png",
	}
}

func usernameDisplayScenario() scenario.Scenario {
	return scenario.Scenario{
		Name:        UsernameDisplay,
		Description: "Group chat opens for a signed-in user",
		Steps: []scenario.Step{
			{Action: scenario.Navigate, Value: "/"},
			{Action: scenario.AssertTitle, Value: "aurora-academic-flow"},
			{Action: scenario.Fill, Locator: browser.ByID("auth-email"), Value: "${user1.email}"},
			{Action: scenario.Fill, Locator: browser.ByID("auth-password"), Value: "${user1.password}"},
			{Name: "sign in", Action: scenario.Click, Locator: browser.ByRole("button", "Sign In")},
			{Name: "tasks visible", Action: scenario.Wait, Locator: browser.ByRole("heading", "Tasks"), Timeout: appWait},
			{Action: scenario.Click, Locator: browser.ByRole("button", "Groups")},
			{Name: "groups loaded", Action: scenario.Wait, Locator: browser.ByText("Loading groups..."),
				Condition: browser.Hidden, Timeout: appWait},
			{Name: "open chat", Action: scenario.Click,
				Locator: browser.ByRole("button", "Open Chat").In(browser.ByTestIDPrefix("group-card-"))},
			{Name: "chat input visible", Action: scenario.Wait,
				Locator: browser.ByCSS(`input[placeholder="Type a message..."]`, ""), Timeout: appWait},
		},
		SuccessShot: "username_display.png",
	}
}
