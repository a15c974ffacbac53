package feishu

import (
	"context"
	"net/http"
)

// UserLookup identifies a user by email or phone. Exactly one field must be
// set.
type UserLookup struct {
	Email string
	Phone string
}

type userLookupRequest struct {
	Emails  []string `json:"emails"`
	Mobiles []string `json:"mobiles"`
}

type userLookupResponse struct {
	UserList []struct {
		UserID string `json:"user_id"`
		Email  string `json:"email,omitempty"`
		Mobile string `json:"mobile,omitempty"`
	} `json:"user_list"`
}

// GetUserID resolves a user id from an email address or phone number.
// Contact lookups authenticate with the app access token.
func (c *Client) GetUserID(ctx context.Context, lookup UserLookup) (string, error) {
	const op = "GetUserID"

	if (lookup.Email == "") == (lookup.Phone == "") {
		return "", &Error{Op: op, Err: ErrValidation, Msg: "exactly one of email or phone must be provided"}
	}

	req := userLookupRequest{Emails: []string{}, Mobiles: []string{}}
	if lookup.Email != "" {
		req.Emails = append(req.Emails, lookup.Email)
	}
	if lookup.Phone != "" {
		req.Mobiles = append(req.Mobiles, lookup.Phone)
	}

	var resp userLookupResponse
	err := c.do(ctx, op, http.MethodPost, "/contact/v3/users/batch_get_id",
		c.appTokens, req, &resp, true)
	if err != nil {
		return "", err
	}

	for _, user := range resp.UserList {
		if user.UserID != "" {
			return user.UserID, nil
		}
	}

	return "", &Error{Op: op, Err: ErrAPIRequest, Msg: "user not found or insufficient permissions"}
}
