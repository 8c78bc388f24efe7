// ABOUTME: Store interface and data types for mcp-router persistence
// ABOUTME: Defines BackendServer, PolicyRule, ApprovalRequest, Token and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when creating an entity whose id already exists
var ErrDuplicateID = errors.New("id already exists")

// Transport identifies the wire mechanism to a backend server.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
	TransportSSE   Transport = "sse"
)

// ServerStatus is the lifecycle state of a backend server.
type ServerStatus string

const (
	ServerStopped  ServerStatus = "stopped"
	ServerStarting ServerStatus = "starting"
	ServerRunning  ServerStatus = "running"
	ServerStopping ServerStatus = "stopping"
	ServerError    ServerStatus = "error"
)

// BackendServer holds the identity and connection recipe for one aggregated
// MCP server. Status is mutated only by the supervisor; all other components
// treat it as read-only.
//
// CreatedAt/UpdatedAt are Unix epoch milliseconds.
type BackendServer struct {
	ID          string
	Name        string
	Transport   Transport
	Command     string            // stdio only
	Args        []string          // stdio only
	Env         map[string]string // stdio only
	URL         string            // http/sse only
	Permissions map[string]bool   // per-tool overrides, toolName -> allowed
	Status      ServerStatus
	LastError   string
	CreatedAt   int64
	UpdatedAt   int64
}

// RuleScope is the applicability scope of a policy rule.
type RuleScope string

const (
	ScopeGlobal    RuleScope = "global"
	ScopeWorkspace RuleScope = "workspace"
	ScopeServer    RuleScope = "server"
	ScopeClient    RuleScope = "client"
)

// RuleAction is the decision a matching policy rule yields.
type RuleAction string

const (
	ActionAllow           RuleAction = "allow"
	ActionDeny            RuleAction = "deny"
	ActionRequireApproval RuleAction = "require_approval"
	ActionRedact          RuleAction = "redact"
)

// ResourceType is the kind of resource a policy rule governs.
type ResourceType string

const (
	ResourceTool     ResourceType = "tool"
	ResourceServer   ResourceType = "server"
	ResourceResource ResourceType = "resource"
)

// PolicyRule is one prioritized access-control entry.
// ScopeID is required unless Scope is global.
//
// CreatedAt/UpdatedAt are Unix epoch milliseconds.
type PolicyRule struct {
	ID           string
	Name         string
	Scope        RuleScope
	ScopeID      string
	ResourceType ResourceType
	Pattern      string // literal, "prefix*", "*suffix", or bare "*"
	Action       RuleAction
	Priority     int
	Enabled      bool
	CreatedAt    int64
	UpdatedAt    int64
}

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is a suspended tool call awaiting a human decision.
// Status leaves pending exactly once and is terminal afterwards.
//
// RequestedAt/ExpiresAt/RespondedAt are Unix epoch milliseconds.
type ApprovalRequest struct {
	ID            string
	ClientID      string
	ServerID      string
	ToolName      string
	ToolArguments map[string]any
	PolicyRuleID  string
	Status        ApprovalStatus
	RequestedAt   int64
	ExpiresAt     int64
	RespondedAt   int64
	RespondedBy   string
	ResponseNote  string
}

// Token is a bearer credential scoped to a client. The id itself is the
// secret; there is no separate token material.
//
// IssuedAt/ExpiresAt/LastUsedAt are Unix epoch seconds (unlike the
// millisecond timestamps on servers and policy rules).
type Token struct {
	ID           string
	ClientID     string
	Name         string
	IssuedAt     int64
	ExpiresAt    int64
	Scopes       []string
	ServerAccess map[string]bool // serverID -> allow/deny
	LastUsedAt   int64
}

// ServerStore persists backend server configurations.
type ServerStore interface {
	CreateServer(ctx context.Context, srv *BackendServer) error
	GetServer(ctx context.Context, id string) (*BackendServer, error)
	ListServers(ctx context.Context) ([]*BackendServer, error)
	UpdateServer(ctx context.Context, srv *BackendServer) error
	UpdateServerStatus(ctx context.Context, id string, status ServerStatus, lastError string) error
	DeleteServer(ctx context.Context, id string) error
}

// PolicyStore persists access-control rules.
type PolicyStore interface {
	CreateRule(ctx context.Context, rule *PolicyRule) error
	GetRule(ctx context.Context, id string) (*PolicyRule, error)
	ListRules(ctx context.Context, scope RuleScope, scopeID string) ([]*PolicyRule, error)
	ListEnabledRules(ctx context.Context, resourceType ResourceType) ([]*PolicyRule, error)
	UpdateRule(ctx context.Context, rule *PolicyRule) error
	DeleteRule(ctx context.Context, id string) error
}

// ApprovalStore persists approval requests.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, req *ApprovalRequest) error
	GetApproval(ctx context.Context, id string) (*ApprovalRequest, error)
	ListPendingApprovals(ctx context.Context) ([]*ApprovalRequest, error)
	// ResolveApproval transitions a pending request to the given terminal
	// status. Returns false (and no error) if the request was not pending,
	// so concurrent responders resolve exactly one winner.
	ResolveApproval(ctx context.Context, id string, status ApprovalStatus, respondedBy, note string, respondedAt int64) (bool, error)
	// ExpirePendingApprovals transitions every pending request whose
	// ExpiresAt is before cutoff to expired and returns their ids.
	ExpirePendingApprovals(ctx context.Context, cutoff int64) ([]string, error)
}

// TokenStore persists bearer tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, tok *Token) error
	GetToken(ctx context.Context, id string) (*Token, error)
	ListTokensByClient(ctx context.Context, clientID string) ([]*Token, error)
	UpdateToken(ctx context.Context, tok *Token) error
	DeleteToken(ctx context.Context, id string) error
}

// Store is the full persistence contract for the router.
type Store interface {
	ServerStore
	PolicyStore
	ApprovalStore
	TokenStore
	AuditStore
	Close() error
}

// nowMillis returns the current time as Unix epoch milliseconds.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
