package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tonimelisma/davharness/internal/dav"
)

const (
	// trashedState is root.deleted.state for a disabled space.
	trashedState = "trashed"
	purgeValue   = "T"
)

// driveResponse mirrors the drive JSON response.
// Unexported; callers use Space via toSpace() normalization.
type driveResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	DriveType string      `json:"driveType"`
	Owner     *ownerFacet `json:"owner,omitempty"`
	Quota     *quotaFacet `json:"quota,omitempty"`
	Root      *rootFacet  `json:"root,omitempty"`
}

// ownerFacet represents the owner block in a drive response.
type ownerFacet struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
}

// quotaFacet represents the quota block in a drive response.
type quotaFacet struct {
	Used  int64 `json:"used,omitempty"`
	Total int64 `json:"total"`
}

// rootFacet carries the WebDAV URL and the trashed marker of a space.
type rootFacet struct {
	WebDAVURL string `json:"webDavUrl,omitempty"`
	Deleted   *struct {
		State string `json:"state"`
	} `json:"deleted,omitempty"`
}

// drivesListResponse wraps the value array from GET /me/drives.
type drivesListResponse struct {
	Value []driveResponse `json:"value"`
}

// toSpace normalizes a drive response into our Space type.
// Nil-safe for optional owner, quota and root facets.
func (d *driveResponse) toSpace() Space {
	sp := Space{
		ID:        d.ID,
		Name:      d.Name,
		DriveType: d.DriveType,
	}

	if d.Owner != nil {
		sp.OwnerID = d.Owner.User.ID
	}

	if d.Quota != nil {
		sp.QuotaUsed = d.Quota.Used
		sp.QuotaTotal = d.Quota.Total
	}

	if d.Root != nil {
		sp.WebDAVURL = d.Root.WebDAVURL
		sp.Trashed = d.Root.Deleted != nil && d.Root.Deleted.State == trashedState
	}

	return sp
}

// Spaces returns all spaces visible to the user, trashed ones included.
func (c *Client) Spaces(ctx context.Context, creds dav.Credentials) ([]Space, error) {
	c.logger.Debug("listing spaces", slog.String("user", creds.Username))

	resp, err := c.Do(ctx, creds, http.MethodGet, "/me/drives", nil, nil)
	if err != nil {
		return nil, err
	}

	var dlr drivesListResponse
	if err := json.Unmarshal(resp.Body, &dlr); err != nil {
		return nil, fmt.Errorf("graph: decoding drives response: %w", err)
	}

	spaces := make([]Space, 0, len(dlr.Value))
	for i := range dlr.Value {
		spaces = append(spaces, dlr.Value[i].toSpace())
	}

	return spaces, nil
}

// CreateSpace creates a project space. quota zero leaves it unlimited.
func (c *Client) CreateSpace(ctx context.Context, creds dav.Credentials, name string, quota int64) (*Space, error) {
	c.logger.Info("creating space",
		slog.String("name", name),
		slog.String("user", creds.Username),
	)

	req := driveResponse{Name: name, DriveType: DriveTypeProject}
	if quota > 0 {
		req.Quota = &quotaFacet{Total: quota}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("graph: encoding create space request: %w", err)
	}

	resp, err := c.Do(ctx, creds, http.MethodPost, "/drives", nil, body)
	if err != nil {
		return nil, err
	}

	var dr driveResponse
	if err := json.Unmarshal(resp.Body, &dr); err != nil {
		return nil, fmt.Errorf("graph: decoding drive response: %w", err)
	}

	sp := dr.toSpace()

	c.logger.Debug("created space",
		slog.String("id", sp.ID),
		slog.String("name", sp.Name),
	)

	return &sp, nil
}

// DisableSpace moves a space to the trash. Its id stays valid until
// DeleteSpace purges it.
func (c *Client) DisableSpace(ctx context.Context, creds dav.Credentials, id string) error {
	c.logger.Info("disabling space", slog.String("space_id", id))

	_, err := c.Do(ctx, creds, http.MethodDelete, "/drives/"+url.PathEscape(id), nil, nil)

	return err
}

// DeleteSpace purges a disabled space.
func (c *Client) DeleteSpace(ctx context.Context, creds dav.Credentials, id string) error {
	c.logger.Info("purging space", slog.String("space_id", id))

	h := make(http.Header)
	h.Set(dav.HeaderPurge, purgeValue)

	_, err := c.Do(ctx, creds, http.MethodDelete, "/drives/"+url.PathEscape(id), h, nil)

	return err
}
