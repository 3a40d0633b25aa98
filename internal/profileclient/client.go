// Package profileclient talks to the profile API on behalf of the reader:
// password-grant login, bearer-authenticated profile reads and writes, and
// an on-disk token cache.
package profileclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"readalong/internal/apperr"
	"readalong/internal/models"
)

// ErrNotFound is returned when the profile does not exist.
var ErrNotFound = errors.New("profile not found")

const requestTimeout = 10 * time.Second

// Session is an authenticated reader.
type Session struct {
	Token  *oauth2.Token
	UserID string
	Name   string
}

func oauthConfig(baseURL string) *oauth2.Config {
	return &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(baseURL, "/") + "/api/auth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Login exchanges email and password for an access token.
func Login(ctx context.Context, baseURL, email, password string) (*Session, error) {
	tok, err := oauthConfig(baseURL).PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			if rerr.ErrorCode == "invalid_grant" || rerr.Response.StatusCode == http.StatusUnauthorized {
				return nil, fmt.Errorf("%w: %s", apperr.ErrUnauthorized, describe(rerr))
			}
			return nil, fmt.Errorf("login failed: %s", describe(rerr))
		}
		return nil, fmt.Errorf("%w: login failed: %v", apperr.ErrConnectivity, err)
	}

	userID, _ := tok.Extra("user_id").(string)
	name, _ := tok.Extra("name").(string)
	if userID == "" {
		return nil, errors.New("login response has no user_id")
	}
	return &Session{Token: tok, UserID: userID, Name: name}, nil
}

func describe(rerr *oauth2.RetrieveError) string {
	if rerr.ErrorDescription != "" {
		return rerr.ErrorDescription
	}
	if rerr.ErrorCode != "" {
		return rerr.ErrorCode
	}
	return rerr.Response.Status
}

// Signup creates an account. It does not log in.
func Signup(ctx context.Context, baseURL, email, password, name string) (*models.Profile, error) {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: requestTimeout}}
	body := map[string]string{"email": email, "password": password, "name": name}
	var profile models.Profile
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", body, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Client is a bearer-authenticated profile API client. It implements
// scoring.ProfileStore.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New returns a client that sends tok on every request.
func New(ctx context.Context, baseURL string, tok *oauth2.Token, log zerolog.Logger) *Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	httpClient.Timeout = requestTimeout
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log.With().Str("component", "profileclient").Logger(),
	}
}

// GetProfile fetches a profile by user id.
func (c *Client) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	if err := c.do(ctx, http.MethodGet, "/api/profile/"+id, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile applies a partial update.
func (c *Client) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.Profile, error) {
	var profile models.Profile
	if err := c.do(ctx, http.MethodPut, "/api/profile/"+id, upd, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// History returns the most recent score flushes, newest first.
func (c *Client) History(ctx context.Context, id string, limit int) ([]models.ReadingRecord, error) {
	path := "/api/profile/" + id + "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var records []models.ReadingRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetScore returns the cumulative score of participantID.
func (c *Client) GetScore(ctx context.Context, participantID string) (int, error) {
	profile, err := c.GetProfile(ctx, participantID)
	if err != nil {
		return 0, err
	}
	return profile.Score, nil
}

// UpdateScore writes the cumulative score of participantID.
func (c *Client) UpdateScore(ctx context.Context, participantID string, score int) error {
	_, err := c.UpdateProfile(ctx, participantID, models.ProfileUpdate{Score: &score})
	if err == nil {
		c.log.Debug().Str("user", participantID).Int("score", score).Msg("score_updated")
	}
	return err
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", apperr.ErrConnectivity, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err != nil {
			c.log.Debug().Err(err).Int("status", resp.StatusCode).Msg("error_body_unreadable")
		}
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", apperr.ErrUnauthorized, msg)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", apperr.ErrForbidden, msg)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		default:
			return fmt.Errorf("%s %s failed: %s", method, path, msg)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
