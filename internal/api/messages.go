package api

import (
	"context"

	"chat-client/internal/wire"
)

// SendMessage posts a message to a room and returns the confirmed wire
// record, including the id assigned by the backend. userFullName may be
// empty, in which case the user id doubles as the display name.
func (c *Client) SendMessage(ctx context.Context, roomID, userID, userFullName, text string) (wire.Raw, error) {
	display := userFullName
	if display == "" {
		display = userID
	}
	req := map[string]string{
		"room_id": roomID,
		"user_id": userID,
		"user":    display,
		"content": text,
	}
	var raw wire.Raw
	err := c.do(ctx, "POST", "/rooms/"+roomID+"/messages/", req, &raw)
	return raw, err
}

// Messages fetches the full message history of a room in wire format.
func (c *Client) Messages(ctx context.Context, roomID string) ([]wire.Raw, error) {
	var raws []wire.Raw
	err := c.do(ctx, "GET", "/rooms/"+roomID+"/messages/", nil, &raws)
	return raws, err
}
