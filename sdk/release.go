package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ReleaseClient is a client for the release resource
type ReleaseClient struct {
	client *Client
}

// Release represents a release
type Release struct {
	ID             int64        `json:"id"`
	Commit         string       `json:"commit"`
	CreatedAt      string       `json:"created_at"`
	Status         *string      `json:"status"`
	Semver         *string      `json:"semver"`
	IsFinal        bool         `json:"is_final"`
	BuildLog       *string      `json:"build_log"`
	StartTimestamp *string      `json:"start_timestamp"`
	EndTimestamp   *string      `json:"end_timestamp"`
	ReleaseTag     []ReleaseTag `json:"release_tag,omitempty"`
}

// ReleaseTag is a key/value tag attached to a release
type ReleaseTag struct {
	TagKey string `json:"tag_key"`
	Value  string `json:"value"`
}

func (t ReleaseTag) String() string {
	return t.TagKey + "=" + t.Value
}

var releaseSelect = strings.Join([]string{
	"id", "commit", "created_at", "status", "semver", "is_final",
	"build_log", "start_timestamp", "end_timestamp",
}, ",")

func releaseQuery(filter string) url.Values {
	q := url.Values{}
	q.Set("$select", releaseSelect)
	q.Set("$expand", "release_tag($select=tag_key,value)")
	q.Set("$orderby", "created_at desc")
	if filter != "" {
		q.Set("$filter", filter)
	}
	return q
}

// Get gets a release by commit. Short commits are matched as a prefix; an
// exact match wins over other prefix matches.
func (c *ReleaseClient) Get(ctx context.Context, commit string) (*Release, error) {
	commit = strings.TrimSpace(commit)
	if commit == "" {
		return nil, &NotFoundError{Resource: "release", Key: commit}
	}

	var releases []Release
	filter := fmt.Sprintf("startswith(commit,%s)", quote(commit))
	if err := c.client.list(ctx, resourcePath("release"), releaseQuery(filter), &releases); err != nil {
		return nil, err
	}

	switch len(releases) {
	case 0:
		return nil, &NotFoundError{Resource: "release", Key: commit}
	case 1:
		return &releases[0], nil
	}

	commits := make([]string, len(releases))
	for i := range releases {
		if releases[i].Commit == commit {
			return &releases[i], nil
		}
		commits[i] = releases[i].Commit
	}
	return nil, &AmbiguousError{Resource: "release", Key: commit, Matches: commits}
}

// GetAllByApplication lists the releases of a fleet, newest first
func (c *ReleaseClient) GetAllByApplication(ctx context.Context, nameOrSlugOrID string) ([]Release, error) {
	app, err := c.client.Applications.Get(ctx, nameOrSlugOrID)
	if err != nil {
		return nil, err
	}

	var releases []Release
	filter := fmt.Sprintf("belongs_to__application eq %d", app.ID)
	if err := c.client.list(ctx, resourcePath("release"), releaseQuery(filter), &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// Finalize marks a draft release as final
func (c *ReleaseClient) Finalize(ctx context.Context, id int64) error {
	body := map[string]any{"is_final": true}
	return c.client.do(ctx, http.MethodPatch, resourcePath("release", id), nil, body, nil)
}
