package api

import (
	"context"
	"net/http"
	"net/url"
)

// Signup registers a new account. It does not log in.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (*User, error) {
	r, err := jsonRequest(http.MethodPost, "/auth/signup", "signup", in, false)
	if err != nil {
		return nil, err
	}
	var user User
	if err := c.do(ctx, r, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges email and password for a bearer token using the OAuth2
// password grant (form-encoded).
func (c *Client) Login(ctx context.Context, email, password string) (*Token, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	form.Set("grant_type", "password")

	r := request{
		method:      http.MethodPost,
		path:        "/auth/token",
		operation:   "login",
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}
	var tok Token
	if err := c.do(ctx, r, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}
