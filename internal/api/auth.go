package api

import "context"

// User is the backend's account record.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password, firstName, lastName, email string) (*User, error) {
	req := map[string]string{
		"username":   username,
		"password":   password,
		"first_name": firstName,
		"last_name":  lastName,
	}
	if email != "" {
		req["email"] = email
	}
	var user User
	if err := c.do(ctx, "POST", "/auth/register/", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates and tags the session with the device fingerprint.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	req := map[string]string{
		"username": username,
		"password": password,
	}
	if c.deviceID != "" {
		req["device_id"] = c.deviceID
	}
	var user User
	if err := c.do(ctx, "POST", "/auth/login/", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ProfileUpdate carries the mutable account fields; nil-equivalent
// (empty) fields are omitted from the request.
type ProfileUpdate struct {
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Email           string `json:"email,omitempty"`
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password,omitempty"`
}

// UpdateProfile applies the given account changes.
func (c *Client) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (*User, error) {
	req := struct {
		UserID int64 `json:"user_id"`
		ProfileUpdate
	}{UserID: userID, ProfileUpdate: update}
	var user User
	if err := c.do(ctx, "PUT", "/auth/profile/", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SubmitFeedback files user feedback.
func (c *Client) SubmitFeedback(ctx context.Context, userID int64, content string) error {
	req := map[string]any{"user_id": userID, "content": content}
	return c.do(ctx, "POST", "/feedback/", req, nil)
}
