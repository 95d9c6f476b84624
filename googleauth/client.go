package googleauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	apperrors "github.com/dottie-ai/assistant-server/internal/errors"
)

// Client is an authenticated handle over one token bundle. It implements
// oauth2.TokenSource; every Token call compares the provider's answer with
// the working copy, so a refresh performed by the underlying source while
// servicing a request is detected, merged (preserving the refresh token),
// persisted under the identity key active at Authenticate time, and handed
// to the update callback.
//
// A failed refresh leaves the handle usable: the last-known-good access
// token is returned and the provider's own rejection of it, if any,
// surfaces on the actual API call.
type Client struct {
	svc       *Service
	key       string
	onRefresh func(TokenBundle)

	// refreshCtx outlives the originating request; see Authenticate.
	refreshCtx context.Context

	mu     sync.Mutex
	bundle TokenBundle
	source oauth2.TokenSource
}

func newClient(refreshCtx context.Context, svc *Service, bundle TokenBundle, key string, onRefresh func(TokenBundle)) *Client {
	return &Client{
		svc:        svc,
		key:        key,
		onRefresh:  onRefresh,
		refreshCtx: refreshCtx,
		bundle:     bundle,
		source:     svc.oauthCfg.TokenSource(refreshCtx, bundle.token()),
	}
}

var _ oauth2.TokenSource = (*Client)(nil)

// Token implements oauth2.TokenSource.
func (c *Client) Token() (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, err := c.source.Token()
	if err != nil {
		log.Warn().Err(err).Str("key", c.key).Msg("token refresh failed, reusing last known access token")
		return c.bundle.token(), nil
	}

	if tok.AccessToken != c.bundle.AccessToken {
		partial, err := bundleFromToken(tok)
		if err != nil {
			return c.bundle.token(), nil
		}
		merged := c.bundle.Merge(partial)
		c.bundle = merged

		log.Info().Str("key", c.key).Msg("tokens refreshed")
		c.svc.persistRefresh(c.refreshCtx, c.key, merged)
		if c.onRefresh != nil {
			c.onRefresh(merged)
		}
	}

	return tok, nil
}

// Bundle returns the current working copy of the credentials.
func (c *Client) Bundle() TokenBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bundle
}

// HTTPClient returns an http.Client whose requests carry the bundle's
// access token, refreshing through this handle.
func (c *Client) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c)
}

// GetJSON performs an authenticated GET of url and decodes the JSON
// response into out. Provider auth rejections map to
// ErrInvalidCredential, every other non-2xx status to ErrProviderAPI.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

// PostJSON performs an authenticated POST of body to url and decodes the
// JSON response into out.
func (c *Client) PostJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient(req.Context()).Do(req)
	if err != nil {
		return errors.Wrap(apperrors.ErrProviderAPI, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.Wrap(apperrors.ErrInvalidCredential, fmt.Sprintf("provider rejected credentials with status %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		return errors.Wrapf(apperrors.ErrProviderAPI, "provider returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(apperrors.ErrProviderAPI, err.Error())
	}
	return nil
}
