// Package jira resolves named Jira instances to configured API clients.
// Instances are discovered once from the environment at startup; the mapping
// is immutable afterwards.
package jira

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	retry "github.com/appleboy/go-httpretry"
)

const envPrefix = "JIRA_INSTANCE_"

// ErrUnknownInstance indicates a caller requested an instance name that is
// not configured. Wrapping errors enumerate the registered names.
var ErrUnknownInstance = errors.New("unknown Jira instance")

// Instance is the configured identity of one Jira deployment.
type Instance struct {
	Name    string
	BaseURL string
	Email   string
	Token   string
}

// Registry maps lowercase instance names to instances, with a lazily-built
// per-instance client cache beside it.
type Registry struct {
	instances map[string]Instance

	mu      sync.Mutex
	clients map[string]*Client
}

// LoadRegistry discovers instances by pattern-matching environ (the
// "KEY=value" form returned by os.Environ) for JIRA_INSTANCE_<NAME>_URL,
// _EMAIL and _TOKEN triples. Malformed entries fail the whole load so a typo
// is caught at startup, not on first use.
func LoadRegistry(environ []string) (*Registry, error) {
	type partial struct {
		url, email, token string
	}
	found := map[string]*partial{}

	get := func(name string) *partial {
		if p, ok := found[name]; ok {
			return p
		}
		p := &partial{}
		found[name] = p
		return p
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, envPrefix)

		switch {
		case strings.HasSuffix(rest, "_URL"):
			get(strings.ToLower(strings.TrimSuffix(rest, "_URL"))).url = value
		case strings.HasSuffix(rest, "_EMAIL"):
			get(strings.ToLower(strings.TrimSuffix(rest, "_EMAIL"))).email = value
		case strings.HasSuffix(rest, "_TOKEN"):
			get(strings.ToLower(strings.TrimSuffix(rest, "_TOKEN"))).token = value
		}
	}

	instances := make(map[string]Instance, len(found))
	for name, p := range found {
		if name == "" {
			return nil, fmt.Errorf("malformed Jira instance variable: empty instance name")
		}
		if p.url == "" {
			return nil, fmt.Errorf(
				"Jira instance %q is missing %s%s_URL",
				name, envPrefix, strings.ToUpper(name),
			)
		}
		if p.token == "" {
			return nil, fmt.Errorf(
				"Jira instance %q is missing %s%s_TOKEN",
				name, envPrefix, strings.ToUpper(name),
			)
		}

		u, err := url.Parse(p.url)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("Jira instance %q has an invalid URL %q", name, p.url)
		}

		if flavorOf(u) == FlavorCloud && p.email == "" {
			return nil, fmt.Errorf(
				"Jira instance %q is cloud-hosted and requires %s%s_EMAIL",
				name, envPrefix, strings.ToUpper(name),
			)
		}

		instances[name] = Instance{
			Name:    name,
			BaseURL: strings.TrimRight(p.url, "/"),
			Email:   p.email,
			Token:   p.token,
		}
	}

	return &Registry{
		instances: instances,
		clients:   make(map[string]*Client),
	}, nil
}

// Names returns the registered instance names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client resolves a case-insensitive instance name to its configured API
// client, constructing it on first use and reusing it after.
func (r *Registry) Client(name string) (*Client, error) {
	key := strings.ToLower(name)

	inst, ok := r.instances[key]
	if !ok {
		return nil, fmt.Errorf(
			"%w %q: configured instances are [%s]; check your JIRA_INSTANCE_<NAME>_* environment variables",
			ErrUnknownInstance,
			name,
			strings.Join(r.Names(), ", "),
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	httpClient, err := retry.NewBackgroundClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	client, err := newClient(inst, httpClient)
	if err != nil {
		return nil, fmt.Errorf("configuring Jira instance %q: %w", name, err)
	}

	r.clients[key] = client
	return client, nil
}
