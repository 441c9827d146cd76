package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tonimelisma/davharness/internal/dav"
)

type sharedItemResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Synchronize bool   `json:"@client.synchronize"`
	Hidden      bool   `json:"@UI.Hidden"`
	RemoteItem  *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"remoteItem,omitempty"`
}

type sharedListResponse struct {
	Value []sharedItemResponse `json:"value"`
}

func (s *sharedItemResponse) toSharedItem() SharedItem {
	item := SharedItem{
		ID:          s.ID,
		Name:        s.Name,
		Synchronize: s.Synchronize,
		Hidden:      s.Hidden,
	}

	if s.RemoteItem != nil {
		item.RemoteID = s.RemoteItem.ID

		if item.Name == "" {
			item.Name = s.RemoteItem.Name
		}
	}

	return item
}

// SharedWithMe lists the shares received by the user.
func (c *Client) SharedWithMe(ctx context.Context, creds dav.Credentials) ([]SharedItem, error) {
	resp, err := c.Do(ctx, creds, http.MethodGet, "/me/drive/sharedWithMe", nil, nil)
	if err != nil {
		return nil, err
	}

	var slr sharedListResponse
	if err := json.Unmarshal(resp.Body, &slr); err != nil {
		return nil, fmt.Errorf("graph: decoding sharedWithMe response: %w", err)
	}

	items := make([]SharedItem, 0, len(slr.Value))
	for i := range slr.Value {
		items = append(items, slr.Value[i].toSharedItem())
	}

	return items, nil
}
