package sdk

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DeviceClient is a client for the device resource
type DeviceClient struct {
	client *Client
}

// Device represents a device
type Device struct {
	ID                   int64        `json:"id"`
	UUID                 string       `json:"uuid"`
	DeviceName           string       `json:"device_name"`
	Status               *string      `json:"status"`
	IsOnline             bool         `json:"is_online"`
	SupervisorVersion    *string      `json:"supervisor_version"`
	OSVersion            *string      `json:"os_version"`
	BelongsToApplication []Reference  `json:"belongs_to__application,omitempty"`
	IsOfDeviceType       []DeviceType `json:"is_of__device_type,omitempty"`
}

// Reference is an expanded fleet reference
type Reference struct {
	ID      int64  `json:"id,omitempty"`
	AppName string `json:"app_name"`
}

// DeviceType is an expanded device type
type DeviceType struct {
	Slug string `json:"slug"`
}

// ApplicationName returns the name of the owning fleet, or nil if it was not expanded
func (d *Device) ApplicationName() *string {
	if len(d.BelongsToApplication) == 0 || d.BelongsToApplication[0].AppName == "" {
		return nil
	}
	name := d.BelongsToApplication[0].AppName
	return &name
}

// DeviceTypeSlug returns the device type slug, or nil if it was not expanded
func (d *Device) DeviceTypeSlug() *string {
	if len(d.IsOfDeviceType) == 0 || d.IsOfDeviceType[0].Slug == "" {
		return nil
	}
	slug := d.IsOfDeviceType[0].Slug
	return &slug
}

var deviceSelect = strings.Join([]string{
	"id", "uuid", "device_name", "status", "is_online", "supervisor_version", "os_version",
}, ",")

const deviceExpand = "belongs_to__application($select=id,app_name),is_of__device_type($select=slug)"

func deviceQuery(filter string) url.Values {
	q := url.Values{}
	q.Set("$select", deviceSelect)
	q.Set("$expand", deviceExpand)
	q.Set("$orderby", "device_name asc")
	if filter != "" {
		q.Set("$filter", filter)
	}
	return q
}

// GetAll lists every device the caller can access
func (c *DeviceClient) GetAll(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := c.client.list(ctx, resourcePath("device"), deviceQuery(""), &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// GetAllByApplication lists the devices of one fleet
func (c *DeviceClient) GetAllByApplication(ctx context.Context, applicationID int64) ([]Device, error) {
	filter := fmt.Sprintf("belongs_to__application eq %d", applicationID)

	var devices []Device
	if err := c.client.list(ctx, resourcePath("device"), deviceQuery(filter), &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// GetByUUID gets a device by its full UUID
func (c *DeviceClient) GetByUUID(ctx context.Context, uuid string) (*Device, error) {
	var devices []Device
	filter := "uuid eq " + quote(uuid)
	if err := c.client.list(ctx, resourcePath("device"), deviceQuery(filter), &devices); err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, &NotFoundError{Resource: "device", Key: uuid}
	}
	return &devices[0], nil
}

// DashboardURL returns the dashboard link for a device
func (c *DeviceClient) DashboardURL(uuid string) string {
	return fmt.Sprintf("%s/devices/%s/summary", c.client.dashboardURL, url.PathEscape(uuid))
}
