package api

import (
	"context"
	"fmt"
	"net/url"
)

// Room is the backend's room record.
type Room struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	RoomKey     string `json:"room_key,omitempty"`
	CreatorID   int64  `json:"creator_id"`
	MemberCount int    `json:"member_count,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// RoomStats summarizes a user's room memberships.
type RoomStats struct {
	RoomCount   int `json:"room_count"`
	MemberLimit int `json:"member_limit,omitempty"`
}

// CreateRoom creates a room owned by userID.
func (c *Client) CreateRoom(ctx context.Context, name, userID string) (*Room, error) {
	var room Room
	err := c.do(ctx, "POST", "/rooms/", map[string]string{"name": name, "creator_id": userID}, &room)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// JoinRoom joins the room identified by its invite key.
func (c *Client) JoinRoom(ctx context.Context, roomKey, userID string) (*Room, error) {
	var room Room
	err := c.do(ctx, "POST", "/rooms/join/", map[string]string{"room_key": roomKey, "user_id": userID}, &room)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// LeaveRoom removes userID from the room.
func (c *Client) LeaveRoom(ctx context.Context, roomID, userID string) error {
	return c.do(ctx, "POST", "/rooms/"+roomID+"/leave/", map[string]string{"user_id": userID}, nil)
}

// DeleteRoom deletes a room the user owns.
func (c *Client) DeleteRoom(ctx context.Context, roomID, userID string) error {
	path := fmt.Sprintf("/rooms/%s/delete/?user_id=%s", roomID, url.QueryEscape(userID))
	return c.do(ctx, "DELETE", path, nil, nil)
}

// RenameRoom renames a room on behalf of performerID.
func (c *Client) RenameRoom(ctx context.Context, roomID, newName, performerID string) (*Room, error) {
	req := map[string]string{"name": newName}
	if performerID != "" {
		req["performer_id"] = performerID
	}
	var room Room
	if err := c.do(ctx, "POST", "/rooms/"+roomID+"/rename/", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// KickMember removes targetUserID from the room.
func (c *Client) KickMember(ctx context.Context, roomID, targetUserID, performerID string) error {
	req := map[string]string{"target_user_id": targetUserID}
	if performerID != "" {
		req["performer_id"] = performerID
	}
	return c.do(ctx, "POST", "/rooms/"+roomID+"/kick/", req, nil)
}

// BanMember removes targetUserID and blocks rejoining.
func (c *Client) BanMember(ctx context.Context, roomID, targetUserID, performerID string) error {
	req := map[string]string{"target_user_id": targetUserID}
	if performerID != "" {
		req["performer_id"] = performerID
	}
	return c.do(ctx, "POST", "/rooms/"+roomID+"/ban/", req, nil)
}

// Rooms lists the rooms userID belongs to.
func (c *Client) Rooms(ctx context.Context, userID string) ([]Room, error) {
	var rooms []Room
	err := c.do(ctx, "GET", "/rooms/?user_id="+url.QueryEscape(userID), nil, &rooms)
	return rooms, err
}

// Room fetches one room by id.
func (c *Client) Room(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.do(ctx, "GET", "/rooms/"+roomID+"/", nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Stats fetches the membership stats for userID.
func (c *Client) Stats(ctx context.Context, userID string) (*RoomStats, error) {
	var stats RoomStats
	if err := c.do(ctx, "GET", "/rooms/stats/?user_id="+url.QueryEscape(userID), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
