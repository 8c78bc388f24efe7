// ABOUTME: Admin CLI for mcp-router server, policy, token, and approval management
// ABOUTME: Talks to the router admin API over HTTP with a JWT session

package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/mcp-router/internal/gateway"
)

const banner = `
 _ __ ___   ___ _ __        _ __ ___  _   _| |_ ___ _ __
| '_ ' _ \ / __| '_ \ _____| '__/ _ \| | | | __/ _ \ '__|
| | | | | | (__| |_) |_____| | | (_) | |_| | ||  __/ |
|_| |_| |_|\___| .__/      |_|  \___/ \__,_|\__\___|_|  admin
               |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	client := newAdminClient(cfg)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "login":
		err = cmdLogin(cfg, client)
	case "status":
		err = cmdStatus(client)
	case "servers":
		err = cmdServers(client, args)
	case "policies":
		err = cmdPolicies(client, args)
	case "approvals":
		err = cmdApprovals(client, args)
	case "tokens":
		err = cmdTokens(client, args)
	case "audit":
		err = cmdAudit(client, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: mcp-router-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  login                     Authenticate and store a session")
	fmt.Println("  status                    Show router health and backend servers")
	fmt.Println("  servers list              List backend servers")
	fmt.Println("  servers add               Register a backend server")
	fmt.Println("  servers rm <id>           Remove a stopped server")
	fmt.Println("  servers start <id>        Start a server")
	fmt.Println("  servers stop <id>         Stop a server")
	fmt.Println("  servers restart <id>      Restart a server")
	fmt.Println("  servers tools <id>        Show a running server's tools")
	fmt.Println("  policies list             List policy rules")
	fmt.Println("  policies add              Create a policy rule")
	fmt.Println("  policies rm <id>          Delete a policy rule")
	fmt.Println("  policies enable <id>      Enable a rule")
	fmt.Println("  policies disable <id>     Disable a rule")
	fmt.Println("  approvals list            List pending approval requests")
	fmt.Println("  approvals approve <id>    Approve a pending request")
	fmt.Println("  approvals reject <id>     Reject a pending request")
	fmt.Println("  tokens create             Issue a router token")
	fmt.Println("  tokens list <client-id>   List a client's tokens")
	fmt.Println("  tokens revoke <id>        Revoke a token")
	fmt.Println("  tokens refresh <id>       Extend a token's expiry")
	fmt.Println("  audit                     Show recent audit entries")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  MCP_ROUTER_ADMIN_CONFIG    Config path (default: ~/.config/mcp-router/admin.toml)")
	fmt.Println("  MCP_ROUTER_ADMIN_PASSWORD  Password for non-interactive login")
}

func cmdLogin(cfg *Config, client *adminClient) error {
	password := os.Getenv("MCP_ROUTER_ADMIN_PASSWORD")
	if password == "" {
		fmt.Print("Admin password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	var resp gateway.LoginResponse
	if err := client.post("/api/login", gateway.LoginRequest{Password: password}, &resp); err != nil {
		return err
	}

	cfg.Router.Session = resp.Token
	if err := saveConfig(cfg); err != nil {
		return err
	}
	color.Green("✓ logged in, session saved to %s", configPath())
	return nil
}

func cmdStatus(client *adminClient) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	var health map[string]string
	if err := client.get("/health", &health); err != nil {
		yellow.Printf("  Router:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}
	green.Printf("  Router:  ")
	fmt.Printf("%s (version %s)\n", client.baseURL, health["version"])

	var servers []gateway.ServerResponse
	if err := client.get("/api/servers", &servers); err != nil {
		yellow.Printf("  Servers: ")
		fmt.Printf("unavailable (%v)\n", err)
		return nil
	}
	running := 0
	for _, srv := range servers {
		if srv.Status == "running" {
			running++
		}
	}
	green.Printf("  Servers: ")
	fmt.Printf("%d configured, %d running\n", len(servers), running)
	return nil
}

func cmdServers(client *adminClient, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		var servers []gateway.ServerResponse
		if err := client.get("/api/servers", &servers); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTRANSPORT\tSTATUS\tERROR")
		for _, srv := range servers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", srv.ID, srv.Name, srv.Transport, colorStatus(srv.Status), srv.LastError)
		}
		return w.Flush()

	case "add":
		fs := flag.NewFlagSet("servers add", flag.ContinueOnError)
		name := fs.String("name", "", "server name")
		transport := fs.String("transport", "stdio", "transport: stdio, http, or sse")
		command := fs.String("command", "", "command (stdio)")
		argList := fs.String("args", "", "comma-separated command args (stdio)")
		url := fs.String("url", "", "endpoint URL (http/sse)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		req := gateway.ServerRequest{
			Name:      *name,
			Transport: *transport,
			Command:   *command,
			URL:       *url,
		}
		if *argList != "" {
			req.Args = strings.Split(*argList, ",")
		}
		var srv gateway.ServerResponse
		if err := client.post("/api/servers", req, &srv); err != nil {
			return err
		}
		color.Green("✓ server %s added (%s)", srv.Name, srv.ID)
		return nil

	case "rm":
		if len(args) < 1 {
			return fmt.Errorf("servers rm requires a server id")
		}
		if err := client.delete("/api/servers/" + args[0]); err != nil {
			return err
		}
		color.Green("✓ server %s removed", args[0])
		return nil

	case "start", "stop", "restart":
		if len(args) < 1 {
			return fmt.Errorf("servers %s requires a server id", sub)
		}
		var srv gateway.ServerResponse
		if err := client.post(fmt.Sprintf("/api/servers/%s/%s", args[0], sub), nil, &srv); err != nil {
			return err
		}
		fmt.Printf("%s: %s", srv.Name, colorStatus(srv.Status))
		if srv.LastError != "" {
			fmt.Printf(" (%s)", srv.LastError)
		}
		fmt.Println()
		return nil

	case "tools":
		if len(args) < 1 {
			return fmt.Errorf("servers tools requires a server id")
		}
		var tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := client.get(fmt.Sprintf("/api/servers/%s/tools", args[0]), &tools); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tDESCRIPTION")
		for _, tool := range tools {
			fmt.Fprintf(w, "%s\t%s\n", tool.Name, tool.Description)
		}
		return w.Flush()

	default:
		return fmt.Errorf("unknown servers subcommand: %s", sub)
	}
}

func cmdPolicies(client *adminClient, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		var rules []gateway.RuleResponse
		if err := client.get("/api/policies", &rules); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSCOPE\tPATTERN\tACTION\tPRIORITY\tENABLED")
		for _, rule := range rules {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%t\n",
				rule.ID, rule.Name, rule.Scope, rule.Pattern, rule.Action, rule.Priority, rule.Enabled)
		}
		return w.Flush()

	case "add":
		fs := flag.NewFlagSet("policies add", flag.ContinueOnError)
		name := fs.String("name", "", "rule name")
		scope := fs.String("scope", "global", "scope: global, workspace, server, or client")
		scopeID := fs.String("scope-id", "", "scope target id (non-global scopes)")
		resource := fs.String("resource", "tool", "resource type: tool, server, or resource")
		pattern := fs.String("pattern", "", "name pattern: literal, prefix*, *suffix, or *")
		action := fs.String("action", "", "action: allow, deny, or require_approval")
		priority := fs.Int("priority", 0, "rule priority, higher wins")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var rule gateway.RuleResponse
		req := gateway.RuleRequest{
			Name:         *name,
			Scope:        *scope,
			ScopeID:      *scopeID,
			ResourceType: *resource,
			Pattern:      *pattern,
			Action:       *action,
			Priority:     priority,
		}
		if err := client.post("/api/policies", req, &rule); err != nil {
			return err
		}
		color.Green("✓ rule %s created (%s)", rule.Name, rule.ID)
		return nil

	case "rm":
		if len(args) < 1 {
			return fmt.Errorf("policies rm requires a rule id")
		}
		if err := client.delete("/api/policies/" + args[0]); err != nil {
			return err
		}
		color.Green("✓ rule %s deleted", args[0])
		return nil

	case "enable", "disable":
		if len(args) < 1 {
			return fmt.Errorf("policies %s requires a rule id", sub)
		}
		enabled := sub == "enable"
		var rule gateway.RuleResponse
		if err := client.put("/api/policies/"+args[0], gateway.RuleRequest{Enabled: &enabled}, &rule); err != nil {
			return err
		}
		color.Green("✓ rule %s %sd", rule.ID, sub)
		return nil

	default:
		return fmt.Errorf("unknown policies subcommand: %s", sub)
	}
}

func cmdApprovals(client *adminClient, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		var pending []gateway.ApprovalResponse
		if err := client.get("/api/approvals", &pending); err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("no pending approvals")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLIENT\tSERVER\tTOOL\tEXPIRES")
		for _, req := range pending {
			expires := time.UnixMilli(req.ExpiresAt).Format(time.RFC3339)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", req.ID, req.ClientID, req.ServerID, req.ToolName, expires)
		}
		return w.Flush()

	case "approve", "reject":
		if len(args) < 1 {
			return fmt.Errorf("approvals %s requires a request id", sub)
		}
		note := ""
		if len(args) > 1 {
			note = strings.Join(args[1:], " ")
		}
		var resolved gateway.ApprovalResponse
		body := gateway.RespondRequest{Approved: sub == "approve", Note: note}
		if err := client.post("/api/approvals/"+args[0]+"/respond", body, &resolved); err != nil {
			return err
		}
		color.Green("✓ request %s %s", resolved.ID, resolved.Status)
		return nil

	default:
		return fmt.Errorf("unknown approvals subcommand: %s", sub)
	}
}

func cmdTokens(client *adminClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("tokens requires a subcommand")
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "create":
		fs := flag.NewFlagSet("tokens create", flag.ContinueOnError)
		clientID := fs.String("client", "", "client id the token belongs to")
		name := fs.String("name", "", "human-readable token name")
		ttl := fs.Int64("ttl", 0, "lifetime in seconds (default 24h, capped at 30d)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var tok gateway.TokenResponse
		req := gateway.TokenRequest{ClientID: *clientID, Name: *name, TTLSeconds: *ttl}
		if err := client.post("/api/tokens", req, &tok); err != nil {
			return err
		}
		color.Green("✓ token issued for %s", tok.ClientID)
		fmt.Printf("  %s\n", tok.ID)
		fmt.Printf("  expires %s\n", time.Unix(tok.ExpiresAt, 0).Format(time.RFC3339))
		return nil

	case "list":
		if len(args) < 1 {
			return fmt.Errorf("tokens list requires a client id")
		}
		var tokens []gateway.TokenResponse
		if err := client.get("/api/tokens?client_id="+args[0], &tokens); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEXPIRES\tLAST USED")
		for _, tok := range tokens {
			lastUsed := "never"
			if tok.LastUsedAt != 0 {
				lastUsed = time.Unix(tok.LastUsedAt, 0).Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				tok.ID, tok.Name, time.Unix(tok.ExpiresAt, 0).Format(time.RFC3339), lastUsed)
		}
		return w.Flush()

	case "revoke":
		if len(args) < 1 {
			return fmt.Errorf("tokens revoke requires a token id")
		}
		if err := client.delete("/api/tokens/" + args[0]); err != nil {
			return err
		}
		color.Green("✓ token revoked")
		return nil

	case "refresh":
		if len(args) < 1 {
			return fmt.Errorf("tokens refresh requires a token id")
		}
		var tok gateway.TokenResponse
		if err := client.post("/api/tokens/"+args[0]+"/refresh", nil, &tok); err != nil {
			return err
		}
		color.Green("✓ token refreshed, expires %s", time.Unix(tok.ExpiresAt, 0).Format(time.RFC3339))
		return nil

	default:
		return fmt.Errorf("unknown tokens subcommand: %s", sub)
	}
}

func cmdAudit(client *adminClient, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "max entries")
	action := fs.String("action", "", "filter by action, e.g. tool.call")
	clientID := fs.String("client", "", "filter by client id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := fmt.Sprintf("/api/audit?limit=%d", *limit)
	if *action != "" {
		path += "&action=" + *action
	}
	if *clientID != "" {
		path += "&client_id=" + *clientID
	}

	var entries []gateway.AuditEntryResponse
	if err := client.get(path, &entries); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tCLIENT\tTARGET\tOK")
	for _, e := range entries {
		ts := time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\t%t\n", ts, e.Action, e.ClientID, e.TargetType, e.TargetID, e.Success)
	}
	return w.Flush()
}

func colorStatus(status string) string {
	switch status {
	case "running":
		return color.GreenString(status)
	case "error":
		return color.RedString(status)
	case "starting", "stopping":
		return color.YellowString(status)
	default:
		return status
	}
}
