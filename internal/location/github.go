package location

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v58/github"
)

// GitHubSource reads files through the GitHub contents API.
type GitHubSource struct {
	client *github.Client
}

// NewGitHubSource creates a source for github.com, or for a GitHub Enterprise
// instance when baseURL is set. token may be empty for public repositories.
func NewGitHubSource(httpClient *http.Client, token, baseURL string) (*GitHubSource, error) {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
	}
	return &GitHubSource{client: client}, nil
}

// NewGitHubSourceWithClient wraps an existing client.
func NewGitHubSourceWithClient(client *github.Client) *GitHubSource {
	return &GitHubSource{client: client}
}

func (s *GitHubSource) ReadFile(ctx context.Context, repository, ref, path string) ([]byte, error) {
	owner, repo, err := ParseRepository(repository)
	if err != nil {
		return nil, err
	}
	file, _, resp, err := s.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s@%s: %w", path, ref, ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to fetch %s@%s from %s/%s: %w", path, ref, owner, repo, err)
	}
	if file == nil {
		// The path is a directory.
		return nil, fmt.Errorf("%s@%s: %w", path, ref, ErrFileNotFound)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s@%s: %w", path, ref, err)
	}
	return []byte(content), nil
}

// ParseRepository extracts owner and name from "owner/name", an https URL or
// an scp-style git remote.
func ParseRepository(repository string) (owner, name string, err error) {
	r := strings.TrimSpace(repository)
	r = strings.TrimSuffix(r, ".git")
	r = strings.TrimSuffix(r, "/")
	if i := strings.Index(r, "://"); i >= 0 {
		r = r[i+3:]
		// drop the host
		if j := strings.Index(r, "/"); j >= 0 {
			r = r[j+1:]
		} else {
			r = ""
		}
	} else if i := strings.Index(r, ":"); i >= 0 {
		r = r[i+1:]
	}
	parts := strings.Split(r, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot parse repository %q as owner/name", repository)
	}
	return parts[0], parts[1], nil
}
