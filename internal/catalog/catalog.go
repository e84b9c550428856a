// Package catalog is the registry of integrations the builder recognizes.
//
// The architecture diagram, the completion announcement, and the tool
// hints all consult this registry. Connections the registry does not
// recognize are omitted from the diagram but still named verbatim in the
// general-purpose announcement, so an unknown provider never breaks a
// build.
package catalog

import (
	"strings"
	"sync"

	"github.com/shirisha-ilura/UL/pkg/models"
)

// Integration describes one recognized connection provider.
type Integration struct {
	// Key is the canonical provider key ("google", "jira", "slack").
	Key string
	// Label is the human-readable name rendered on diagram nodes.
	Label string
	// Aliases are alternate spellings seen in configurations and
	// connection lists ("gmail", "google-workspace", ...).
	Aliases []string
	// Capability is the announcement phrase for this provider
	// ("manage your emails", "track and update issues", ...).
	Capability string
}

// Registry is a thread-safe integration lookup seeded with the built-in
// providers. Runtime registration exists so an embedding deployment can
// teach the gateway about extra providers without a rebuild.
type Registry struct {
	mu           sync.RWMutex
	byKey        map[string]*Integration
	byAlias      map[string]string // alias (lowercase) → canonical key
	priority     []string
	databaseTool map[string]bool
}

// New creates a registry seeded with the built-in integrations.
func New() *Registry {
	r := &Registry{
		byKey:        make(map[string]*Integration),
		byAlias:      make(map[string]string),
		databaseTool: make(map[string]bool),
	}
	r.loadBuiltinDefaults()
	return r
}

// Register adds or replaces an integration and indexes its aliases.
func (r *Registry) Register(in *Integration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(in.Key)
	r.byKey[key] = in
	r.byAlias[key] = key
	for _, alias := range in.Aliases {
		r.byAlias[strings.ToLower(alias)] = key
	}
}

// Lookup resolves a connection name to its integration, matching the
// canonical key first and aliases second. Case-insensitive.
func (r *Registry) Lookup(name string) *Integration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.byAlias[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil
	}
	return r.byKey[key]
}

// Recognized filters a raw connection list down to recognized
// integrations, preserving input order and collapsing duplicates that
// resolve to the same provider.
func (r *Registry) Recognized(conns []string) []*Integration {
	seen := make(map[string]bool)
	var result []*Integration
	for _, c := range conns {
		in := r.Lookup(c)
		if in == nil || seen[in.Key] {
			continue
		}
		seen[in.Key] = true
		result = append(result, in)
	}
	return result
}

// ByPriority returns the recognized integrations of a connection list in
// announcement priority order rather than input order.
func (r *Registry) ByPriority(conns []string) []*Integration {
	recognized := r.Recognized(conns)
	byKey := make(map[string]*Integration, len(recognized))
	for _, in := range recognized {
		byKey[in.Key] = in
	}

	r.mu.RLock()
	priority := r.priority
	r.mu.RUnlock()

	var result []*Integration
	for _, key := range priority {
		if in, ok := byKey[key]; ok {
			result = append(result, in)
		}
	}
	return result
}

// IsDatabaseTool reports whether a tool name is a database-query tool.
func (r *Registry) IsDatabaseTool(tool string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.databaseTool[strings.ToLower(strings.TrimSpace(tool))]
}

// HasDatabaseTool reports whether any tool in the list queries a database.
func (r *Registry) HasDatabaseTool(tools []string) bool {
	for _, t := range tools {
		if r.IsDatabaseTool(t) {
			return true
		}
	}
	return false
}

// NodeID returns the diagram node ID for an integration.
func (in *Integration) NodeID() string {
	return in.Key
}

// Node builds the diagram node for an integration.
func (in *Integration) Node() models.GraphNode {
	return models.GraphNode{
		ID:    in.NodeID(),
		Kind:  models.NodeIntegration,
		Label: in.Label,
	}
}

// ── Built-in Defaults ───────────────────────────────────────

// loadBuiltinDefaults seeds the providers the builder ships with. The
// priority order drives the completion announcement: email first, then
// chat, then issue tracking.
func (r *Registry) loadBuiltinDefaults() {
	defaults := []*Integration{
		{
			Key:        "google",
			Label:      "Google Workspace",
			Aliases:    []string{"gmail", "google-workspace", "google_workspace", "googleworkspace"},
			Capability: "manage your emails, calendar, and documents",
		},
		{
			Key:        "slack",
			Label:      "Slack",
			Aliases:    []string{"slack-bot", "slack_bot"},
			Capability: "send messages and manage conversations in Slack",
		},
		{
			Key:        "jira",
			Label:      "Jira",
			Aliases:    []string{"atlassian", "jira-cloud", "jira_cloud"},
			Capability: "track, create, and update issues in Jira",
		},
	}

	for _, d := range defaults {
		r.Register(d)
	}
	r.priority = []string{"google", "slack", "jira"}

	for _, tool := range []string{
		"postgres_query", "database_query", "sql_query", "query_database",
	} {
		r.databaseTool[tool] = true
	}
}
