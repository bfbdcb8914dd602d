package sdk

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// ApplicationClient is a client for the application (fleet) resource
type ApplicationClient struct {
	client *Client
}

// Application represents a fleet
type Application struct {
	ID              int64        `json:"id"`
	AppName         string       `json:"app_name"`
	Slug            string       `json:"slug"`
	IsForDeviceType []DeviceType `json:"is_for__device_type,omitempty"`
}

// DeviceTypeSlug returns the fleet's default device type, or "" if it was not expanded
func (a *Application) DeviceTypeSlug() string {
	if len(a.IsForDeviceType) == 0 {
		return ""
	}
	return a.IsForDeviceType[0].Slug
}

func applicationQuery(filter string) url.Values {
	q := url.Values{}
	q.Set("$select", "id,app_name,slug")
	q.Set("$expand", "is_for__device_type($select=slug)")
	q.Set("$orderby", "app_name asc")
	if filter != "" {
		q.Set("$filter", filter)
	}
	return q
}

// Get resolves a fleet by numeric id, by slug ("org/name") or by name.
// A name shared by several fleets yields an AmbiguousError listing their slugs.
func (c *ApplicationClient) Get(ctx context.Context, nameOrSlugOrID string) (*Application, error) {
	key := strings.TrimSpace(nameOrSlugOrID)
	if key == "" {
		return nil, &NotFoundError{Resource: "fleet", Key: nameOrSlugOrID}
	}

	var (
		apps []Application
		err  error
	)
	switch {
	case isNumeric(key):
		id, _ := strconv.ParseInt(key, 10, 64)
		err = c.client.list(ctx, resourcePath("application", id), applicationQuery(""), &apps)
	case strings.Contains(key, "/"):
		err = c.client.list(ctx, resourcePath("application"), applicationQuery("slug eq "+quote(strings.ToLower(key))), &apps)
	default:
		err = c.client.list(ctx, resourcePath("application"), applicationQuery("app_name eq "+quote(key)), &apps)
	}
	if err != nil {
		if IsNotFound(err) {
			return nil, &NotFoundError{Resource: "fleet", Key: key}
		}
		return nil, err
	}

	switch len(apps) {
	case 0:
		return nil, &NotFoundError{Resource: "fleet", Key: key}
	case 1:
		return &apps[0], nil
	default:
		slugs := make([]string, len(apps))
		for i, app := range apps {
			slugs[i] = app.Slug
		}
		return nil, &AmbiguousError{Resource: "fleet", Key: key, Matches: slugs}
	}
}

// GetAll lists every fleet the caller can access
func (c *ApplicationClient) GetAll(ctx context.Context) ([]Application, error) {
	var apps []Application
	if err := c.client.list(ctx, resourcePath("application"), applicationQuery(""), &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
