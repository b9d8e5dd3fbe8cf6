package sourcegraph

import (
	"context"
	"fmt"
)

const contentQuery = `query FileContent($repo: String!, $path: String!) {
  repository(name: $repo) {
    commit(rev: "HEAD") {
      file(path: $path) {
        content
      }
    }
  }
}`

// FetchContent returns the text content of one file at HEAD.
// It returns ErrInvalidArgument when the repository or path is unknown.
func (c *Client) FetchContent(ctx context.Context, repo, path string) (string, error) {
	data := struct {
		Repository *struct {
			Commit *struct {
				File *struct {
					Content string `json:"content"`
				} `json:"file"`
			} `json:"commit"`
		} `json:"repository"`
	}{}

	vars := map[string]any{"repo": repo, "path": path}
	if err := c.graphql(ctx, contentQuery, vars, &data); err != nil {
		return "", fmt.Errorf("fetching %s/%s: %w", repo, path, err)
	}

	if data.Repository == nil || data.Repository.Commit == nil || data.Repository.Commit.File == nil {
		return "", fmt.Errorf("%s/%s: %w", repo, path, ErrInvalidArgument)
	}
	return data.Repository.Commit.File.Content, nil
}
