package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lexworks/be-referrals/internal/apperr"
)

// IdentityHTTPClient resolves actor roles against the firm's identity service.
// The engine asks for the actor's current role on every decision rather than
// trusting anything the caller sent.
type IdentityHTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewIdentityHTTPClient creates a client for the identity service.
func NewIdentityHTTPClient(baseURL string) *IdentityHTTPClient {
	return &IdentityHTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type roleResponse struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
}

// GetRole returns the actor's current role.
func (c *IdentityHTTPClient) GetRole(ctx context.Context, actorID string) (string, error) {
	path := fmt.Sprintf("%s/api/v1/actors/role?id=%s", c.baseURL, url.QueryEscape(actorID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "failed to build identity request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "identity service unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", apperr.Unauthorized(fmt.Sprintf("unknown actor %q", actorID))
	default:
		return "", apperr.New(apperr.CodeInternal,
			fmt.Sprintf("identity service returned status %d", resp.StatusCode))
	}

	var body roleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "failed to decode identity response")
	}
	if body.Role == "" {
		return "", apperr.Unauthorized(fmt.Sprintf("actor %q has no role", actorID))
	}
	return body.Role, nil
}

// StaticDirectory is an in-memory role directory for tests and driverless runs.
type StaticDirectory struct {
	roles map[string]string
}

// NewStaticDirectory creates a directory from an actor-to-role map.
func NewStaticDirectory(roles map[string]string) *StaticDirectory {
	cp := make(map[string]string, len(roles))
	for k, v := range roles {
		cp[k] = v
	}
	return &StaticDirectory{roles: cp}
}

// GetRole returns the configured role for an actor.
func (d *StaticDirectory) GetRole(ctx context.Context, actorID string) (string, error) {
	role, ok := d.roles[actorID]
	if !ok {
		return "", apperr.Unauthorized(fmt.Sprintf("unknown actor %q", actorID))
	}
	return role, nil
}
