// Package gcp fills secret-backed settings from Google Cloud Secret Manager.
//
// A setting names its secret in one of three forms:
//
//	projects/P/secrets/NAME/versions/V   a pinned version
//	projects/P/secrets/NAME              the latest version
//	NAME                                 the latest version in the current project
//
// The current project is only looked up when a bare name is used. It comes
// from GOOGLE_CLOUD_PROJECT (or the older GCP_PROJECT/GCLOUD_PROJECT) and,
// on GCP, from the metadata server.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/compute/metadata"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

const accessTimeout = 10 * time.Second

var projectEnvVars = []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"}

var errNoProject = errors.New("no GCP project: set GOOGLE_CLOUD_PROJECT or use a projects/<project>/secrets/<name> reference")

// SecretRef binds a secret reference to the setting it fills.
type SecretRef struct {
	// Name identifies the setting in errors, e.g. "github.token".
	Name string
	// Ref is the secret reference; empty means nothing to resolve.
	Ref string
	// Dest receives the secret value.
	Dest *string
}

func (r SecretRef) pending() bool {
	return r.Ref != "" && *r.Dest == ""
}

// SecretFetcher reads the value behind a secret reference.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, ref string) (string, error)
}

// Pending reports whether any ref still needs fetching. A ref whose
// setting already holds a value is skipped.
func Pending(refs []SecretRef) bool {
	for _, r := range refs {
		if r.pending() {
			return true
		}
	}
	return false
}

// Resolve fetches every pending ref into its setting. Secrets are often
// stored with a trailing newline, so values are trimmed; a value that is
// empty after trimming is an error.
func Resolve(ctx context.Context, fetcher SecretFetcher, refs []SecretRef) error {
	for _, r := range refs {
		if !r.pending() {
			continue
		}
		value, err := fetcher.FetchSecret(ctx, r.Ref)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", r.Name, err)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("secret for %s is empty", r.Name)
		}
		*r.Dest = value
	}
	return nil
}

// SecretManager fetches secrets from Secret Manager.
type SecretManager struct {
	client *secretmanager.Client

	findProject func() (string, error)
	projectOnce sync.Once
	project     string
	projectErr  error
}

// NewSecretManager connects with application default credentials unless
// opts say otherwise.
func NewSecretManager(ctx context.Context, opts ...option.ClientOption) (*SecretManager, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &SecretManager{client: client, findProject: currentProject}, nil
}

// FetchSecret implements SecretFetcher.
func (m *SecretManager) FetchSecret(ctx context.Context, ref string) (string, error) {
	name, err := m.versionName(ref)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, accessTimeout)
	defer cancel()

	result, err := m.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access %s: %w", name, err)
	}
	return string(result.GetPayload().GetData()), nil
}

// Close releases the client connection.
func (m *SecretManager) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *SecretManager) versionName(ref string) (string, error) {
	if strings.HasPrefix(ref, "projects/") {
		return qualifiedVersionName(ref)
	}
	if ref == "" || strings.Contains(ref, "/") {
		return "", fmt.Errorf("invalid secret reference %q", ref)
	}

	m.projectOnce.Do(func() {
		m.project, m.projectErr = m.findProject()
	})
	if m.projectErr != nil {
		return "", m.projectErr
	}
	return "projects/" + m.project + "/secrets/" + ref + "/versions/latest", nil
}

// qualifiedVersionName checks a projects/... reference and pins it to the
// latest version when it names none.
func qualifiedVersionName(ref string) (string, error) {
	parts := strings.Split(ref, "/")
	valid := len(parts) >= 4 && parts[1] != "" && parts[2] == "secrets" && parts[3] != ""
	switch {
	case valid && len(parts) == 4:
		return ref + "/versions/latest", nil
	case valid && len(parts) == 6 && parts[4] == "versions" && parts[5] != "":
		return ref, nil
	}
	return "", fmt.Errorf("invalid secret reference %q", ref)
}

func currentProject() (string, error) {
	if p := projectFromEnv(os.Getenv); p != "" {
		return p, nil
	}
	if !metadata.OnGCE() {
		return "", errNoProject
	}
	p, err := metadata.ProjectID()
	if err != nil {
		return "", fmt.Errorf("failed to read project from metadata server: %w", err)
	}
	return p, nil
}

func projectFromEnv(getenv func(string) string) string {
	for _, key := range projectEnvVars {
		if p := strings.TrimSpace(getenv(key)); p != "" {
			return p
		}
	}
	return ""
}
