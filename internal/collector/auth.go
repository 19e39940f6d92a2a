package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// tokenTTL is the exchange-advertised access-token lifetime.
const tokenTTL = 23 * time.Hour

// token is an OAuth2 client-credentials access token with its expiry. The
// collector acquires one fresh per connect (see Collector.runOnce) rather
// than tracking expiry mid-connection, per spec.md §9's "scoped
// acquisition" design note. expiresAt records the token's expiry (tokenTTL
// after acquisition); no code in the collector reads it.
type token struct {
	accessToken string
	expiresAt   time.Time
}

// authorizer acquires access tokens from the exchange's OAuth2
// client-credentials endpoint. It degrades to unauthenticated mode (returns
// a nil token, no error) whenever credentials are absent or the exchange
// rejects the request — matching spec.md §7's auth-failure policy.
type authorizer struct {
	restBase     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *log.Logger
}

func newAuthorizer(restBase, clientID, clientSecret string, logger *log.Logger) *authorizer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 1 * time.Second
	rc.RetryMax = 3
	rc.Logger = logger
	return &authorizer{
		restBase:     restBase,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   rc.StandardClient(),
		logger:       logger,
	}
}

type authResponse struct {
	Result struct {
		AccessToken string `json:"access_token"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// acquire fetches a fresh access token, or returns (nil, nil) when no
// credentials are configured or the exchange rejects the request.
func (a *authorizer) acquire(ctx context.Context) (*token, error) {
	if a.clientID == "" || a.clientSecret == "" {
		a.logger.Printf("collector: no credentials configured, running unauthenticated")
		return nil, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", a.clientID)
	q.Set("client_secret", a.clientSecret)

	endpoint := a.restBase + "/public/auth?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building auth request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Printf("collector: auth request failed: %v, falling back to unauthenticated", err)
		return nil, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.logger.Printf("collector: reading auth response failed: %v, falling back to unauthenticated", err)
		return nil, nil
	}

	if resp.StatusCode/100 == 4 || resp.StatusCode/100 == 5 {
		a.logger.Printf("collector: auth HTTP status %d, falling back to unauthenticated: %s", resp.StatusCode, string(body))
		return nil, nil
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		a.logger.Printf("collector: auth response not JSON, falling back to unauthenticated: %v", err)
		return nil, nil
	}
	if parsed.Error != nil {
		a.logger.Printf("collector: auth rejected: %s, falling back to unauthenticated", parsed.Error.Message)
		return nil, nil
	}
	if parsed.Result.AccessToken == "" {
		a.logger.Printf("collector: auth response missing access_token, falling back to unauthenticated")
		return nil, nil
	}

	return &token{accessToken: parsed.Result.AccessToken, expiresAt: time.Now().Add(tokenTTL)}, nil
}
