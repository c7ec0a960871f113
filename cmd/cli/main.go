package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		handleAuth(args)
	case "sub":
		handleSubscription(args)
	case "module":
		handleModule(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAuth(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: queactl auth <login|logout|who>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "login":
		loginUser(args[1:])
	case "logout":
		logoutUser()
	case "who":
		whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
	}
}

func handleSubscription(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: queactl sub <list|stats|get|activate|extend|deactivate>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listSubscriptions(args[1:])
	case "stats":
		subscriptionStats()
	case "get":
		getSubscription(args[1:])
	case "activate":
		activateSubscription(args[1:])
	case "extend":
		extendSubscription(args[1:])
	case "deactivate":
		deactivateSubscription(args[1:])
	default:
		fmt.Printf("unknown sub command: %s\n", subCmd)
	}
}

func handleModule(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: queactl module <list|create|update|delete>")
		return
	}

	subCmd := args[0]
	switch subCmd {
	case "list":
		listModules()
	case "create":
		createModule(args[1:])
	case "update":
		updateModule(args[1:])
	case "delete":
		deleteModule(args[1:])
	default:
		fmt.Printf("unknown module command: %s\n", subCmd)
	}
}

// envelope mirrors the API's response shape
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Auth commands
func loginUser(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return
	}

	payload := map[string]string{"email": *email, "password": *password}
	data, _ := json.Marshal(payload)
	resp, err := http.Post(getAPIURL()+"/auth/login", "application/json", bytes.NewReader(data))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var env envelope
	json.NewDecoder(resp.Body).Decode(&env)
	if resp.StatusCode != 200 {
		fmt.Printf("✗ Login failed: %s\n", env.Message)
		return
	}

	var result struct {
		Token string `json:"token"`
	}
	json.Unmarshal(env.Data, &result)
	if result.Token == "" {
		fmt.Println("✗ Login failed: no token in response")
		return
	}
	saveToken(result.Token)
	fmt.Printf("✓ Logged in as: %s\n", *email)
}

func logoutUser() {
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
}

func whoAmI() {
	env, status, err := apiGet("/auth/me")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Println("Not logged in")
		return
	}

	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	json.Unmarshal(env.Data, &me)
	fmt.Printf("✓ Logged in as %s (%s)\n", me.Email, me.Role)
}

// Subscription commands
func listSubscriptions(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "page size")
	page := fs.Int("page", 1, "page number")
	statusFilter := fs.String("status", "", "filter by status (ACTIVE, INACTIVE, EXPIRED)")

	fs.Parse(args)

	env, status, err := apiGet(fmt.Sprintf("/admin/subscriptions?status=%s&page=%d&limit=%d", *statusFilter, *page, *limit))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}

	var subs []struct {
		BusinessID string `json:"businessId"`
		Status     string `json:"status"`
		ExpiresAt  string `json:"expiresAt"`
	}
	json.Unmarshal(env.Data, &subs)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BUSINESS\tSTATUS\tEXPIRES")
	for _, s := range subs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.BusinessID, s.Status, s.ExpiresAt)
	}
	w.Flush()
}

func subscriptionStats() {
	env, status, err := apiGet("/admin/subscriptions/stats")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}

	var stats struct {
		TotalBusinesses       int            `json:"totalBusinesses"`
		ActiveSubscriptions   int            `json:"activeSubscriptions"`
		ExpiredSubscriptions  int            `json:"expiredSubscriptions"`
		InactiveSubscriptions int            `json:"inactiveSubscriptions"`
		StatusBreakdown       map[string]int `json:"statusBreakdown"`
	}
	json.Unmarshal(env.Data, &stats)

	fmt.Printf("Businesses: %d\nActive:     %d\nExpired:    %d\nInactive:   %d\n",
		stats.TotalBusinesses, stats.ActiveSubscriptions,
		stats.ExpiredSubscriptions, stats.InactiveSubscriptions)
	for st, n := range stats.StatusBreakdown {
		fmt.Printf("  %s: %d\n", st, n)
	}
}

func getSubscription(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: queactl sub get <business-id>")
		return
	}
	env, status, err := apiGet("/admin/subscriptions/" + args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}
	printJSON(env.Data)
}

func activateSubscription(args []string) {
	fs := flag.NewFlagSet("activate", flag.ExitOnError)
	months := fs.Int("months", 1, "subscription length in months (1-36)")

	if len(args) < 1 {
		fmt.Println("Usage: queactl sub activate <business-id> [-months 1]")
		return
	}
	businessID := args[0]
	fs.Parse(args[1:])

	env, status, err := apiPost("/admin/subscriptions/"+businessID+"/activate",
		map[string]int{"durationMonths": *months})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}
	fmt.Printf("✓ Subscription activated for %s (%d months)\n", businessID, *months)
}

func extendSubscription(args []string) {
	fs := flag.NewFlagSet("extend", flag.ExitOnError)
	months := fs.Int("months", 1, "months to add (1-36)")

	if len(args) < 1 {
		fmt.Println("Usage: queactl sub extend <business-id> [-months 1]")
		return
	}
	businessID := args[0]
	fs.Parse(args[1:])

	env, status, err := apiPost("/admin/subscriptions/"+businessID+"/extend",
		map[string]int{"durationMonths": *months})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}
	fmt.Printf("✓ Subscription extended for %s (+%d months)\n", businessID, *months)
}

func deactivateSubscription(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: queactl sub deactivate <business-id>")
		return
	}
	env, status, err := apiPost("/admin/subscriptions/"+args[0]+"/deactivate", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}
	fmt.Printf("✓ Subscription deactivated for %s\n", args[0])
}

// Permission module commands
func listModules() {
	env, status, err := apiGet("/admin/permission-modules")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}

	var modules []struct {
		Name    string   `json:"name"`
		Actions []string `json:"actions"`
	}
	json.Unmarshal(env.Data, &modules)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tACTIONS")
	for _, m := range modules {
		fmt.Fprintf(w, "%s\t%s\n", m.Name, strings.Join(m.Actions, ", "))
	}
	w.Flush()
}

func createModule(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "module name")
	actions := fs.String("actions", "", "comma-separated actions")

	fs.Parse(args)

	if *name == "" || *actions == "" {
		fmt.Println("Error: name and actions are required")
		fs.PrintDefaults()
		return
	}

	env, status, err := apiPost("/admin/permission-modules", map[string]any{
		"name":    *name,
		"actions": splitActions(*actions),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 201 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}
	fmt.Printf("✓ Module created: %s\n", *name)
}

func updateModule(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	actions := fs.String("actions", "", "comma-separated actions")

	if len(args) < 1 {
		fmt.Println("Usage: queactl module update <name> -actions view,create")
		return
	}
	name := args[0]
	fs.Parse(args[1:])

	if *actions == "" {
		fmt.Println("Error: actions are required")
		return
	}

	env, status, err := apiDo("PUT", "/admin/permission-modules/"+name, map[string]any{
		"actions": splitActions(*actions),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}
	fmt.Printf("✓ Module updated: %s\n", name)
}

func deleteModule(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: queactl module delete <name>")
		return
	}
	env, status, err := apiDo("DELETE", "/admin/permission-modules/"+args[0], nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if status != 200 {
		fmt.Printf("✗ %s\n", env.Message)
		return
	}
	fmt.Printf("✓ Module deleted: %s\n", args[0])
}

// Helper functions
func apiGet(path string) (*envelope, int, error) {
	return apiDo("GET", path, nil)
}

func apiPost(path string, payload any) (*envelope, int, error) {
	return apiDo("POST", path, payload)
}

func apiDo(method, path string, payload any) (*envelope, int, error) {
	var body *bytes.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, getAPIURL()+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var env envelope
	json.NewDecoder(resp.Body).Decode(&env)
	return &env, resp.StatusCode, nil
}

func printJSON(data json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(buf.String())
}

func splitActions(s string) []string {
	parts := strings.Split(s, ",")
	actions := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			actions = append(actions, trimmed)
		}
	}
	return actions
}

func getAPIURL() string {
	if url := os.Getenv("QUEACCOUNTING_API"); url != "" {
		return url
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return home + "/.queaccounting/token"
}

func saveToken(token string) error {
	home, _ := os.UserHomeDir()
	os.MkdirAll(home+"/.queaccounting", 0700)
	return os.WriteFile(tokenFile(), []byte(token), 0600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return string(data)
}

func addAuthHeader(req *http.Request) {
	token := loadToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`QUE Accounting operator CLI

Usage:
  queactl <command> [options]

Commands:
  auth    Authentication (login, logout, who)
  sub     Subscription administration (list, stats, get, activate, extend, deactivate)
  module  Permission catalog administration (list, create, update, delete)
  help    Show this help message

Environment Variables:
  QUEACCOUNTING_API    API endpoint (default: http://localhost:8080/api)

Examples:
  queactl auth login -email admin@example.com -password pass
  queactl sub list
  queactl sub activate 4f9c... -months 3
  queactl module create -name customer -actions view,create,update,delete
`)
}
