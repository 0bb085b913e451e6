package jira

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadRegistry_DiscoversInstances(t *testing.T) {
	environ := []string{
		"PATH=/usr/bin",
		"JIRA_INSTANCE_AMD_URL=https://jira.amd.example.com",
		"JIRA_INSTANCE_AMD_TOKEN=pat-1",
		"JIRA_INSTANCE_ONTRACK_URL=https://ontrack.atlassian.net",
		"JIRA_INSTANCE_ONTRACK_EMAIL=dev@example.com",
		"JIRA_INSTANCE_ONTRACK_TOKEN=api-token-2",
		"HOME=/home/dev",
	}

	reg, err := LoadRegistry(environ)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "amd" || names[1] != "ontrack" {
		t.Errorf("Expected sorted names [amd ontrack], got: %v", names)
	}
}

func TestLoadRegistry_EmptyEnvironment(t *testing.T) {
	reg, err := LoadRegistry([]string{"PATH=/usr/bin"})
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	if len(reg.Names()) != 0 {
		t.Errorf("Expected no instances, got: %v", reg.Names())
	}
}

func TestLoadRegistry_MissingTokenFailsEagerly(t *testing.T) {
	environ := []string{
		"JIRA_INSTANCE_AMD_URL=https://jira.amd.example.com",
	}

	_, err := LoadRegistry(environ)
	if err == nil {
		t.Fatal("Expected an error for an instance without a token")
	}
	if !strings.Contains(err.Error(), "JIRA_INSTANCE_AMD_TOKEN") {
		t.Errorf("Error should name the missing variable, got: %v", err)
	}
}

func TestLoadRegistry_MissingURLFailsEagerly(t *testing.T) {
	environ := []string{
		"JIRA_INSTANCE_AMD_TOKEN=pat-1",
	}

	_, err := LoadRegistry(environ)
	if err == nil {
		t.Fatal("Expected an error for an instance without a URL")
	}
	if !strings.Contains(err.Error(), "JIRA_INSTANCE_AMD_URL") {
		t.Errorf("Error should name the missing variable, got: %v", err)
	}
}

func TestLoadRegistry_InvalidURL(t *testing.T) {
	environ := []string{
		"JIRA_INSTANCE_AMD_URL=not-a-url",
		"JIRA_INSTANCE_AMD_TOKEN=pat-1",
	}

	if _, err := LoadRegistry(environ); err == nil {
		t.Fatal("Expected an error for an unparsable instance URL")
	}
}

func TestLoadRegistry_CloudRequiresEmail(t *testing.T) {
	environ := []string{
		"JIRA_INSTANCE_ONTRACK_URL=https://ontrack.atlassian.net",
		"JIRA_INSTANCE_ONTRACK_TOKEN=api-token-2",
	}

	_, err := LoadRegistry(environ)
	if err == nil {
		t.Fatal("Expected an error for a cloud instance without an email")
	}
	if !strings.Contains(err.Error(), "JIRA_INSTANCE_ONTRACK_EMAIL") {
		t.Errorf("Error should name the missing variable, got: %v", err)
	}
}

func TestRegistry_UnknownInstance(t *testing.T) {
	environ := []string{
		"JIRA_INSTANCE_AMD_URL=https://jira.amd.example.com",
		"JIRA_INSTANCE_AMD_TOKEN=pat-1",
		"JIRA_INSTANCE_ONTRACK_URL=https://ontrack.atlassian.net",
		"JIRA_INSTANCE_ONTRACK_EMAIL=dev@example.com",
		"JIRA_INSTANCE_ONTRACK_TOKEN=api-token-2",
	}

	reg, err := LoadRegistry(environ)
	if err != nil {
		t.Fatal(err)
	}

	_, err = reg.Client("staging")
	if !errors.Is(err, ErrUnknownInstance) {
		t.Fatalf("Expected ErrUnknownInstance, got: %v", err)
	}

	// The message enumerates what IS configured so the caller can self-correct.
	if !strings.Contains(err.Error(), "amd, ontrack") {
		t.Errorf("Error should list the configured instances, got: %v", err)
	}
	if !strings.Contains(err.Error(), "JIRA_INSTANCE_<NAME>_*") {
		t.Errorf("Error should point at the environment pattern, got: %v", err)
	}
}

func TestRegistry_ClientIsCaseInsensitiveAndCached(t *testing.T) {
	environ := []string{
		"JIRA_INSTANCE_AMD_URL=https://jira.amd.example.com",
		"JIRA_INSTANCE_AMD_TOKEN=pat-1",
	}

	reg, err := LoadRegistry(environ)
	if err != nil {
		t.Fatal(err)
	}

	first, err := reg.Client("AMD")
	if err != nil {
		t.Fatalf("Client lookup failed: %v", err)
	}
	second, err := reg.Client("amd")
	if err != nil {
		t.Fatalf("Client lookup failed: %v", err)
	}

	if first != second {
		t.Error("Expected the same cached client for repeated lookups")
	}
}
