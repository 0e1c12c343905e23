// ABOUTME: Login flow against the ChatGPT web surface
// ABOUTME: Walks the Auth0 browser flow as an explicit state machine to obtain a bearer token

package chatgpt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// maxRedirectHops bounds the redirect chain after the credentials post.
const maxRedirectHops = 10

// loginState names the stops of the login walk. The backend exposes login
// as a human browser flow, so each transition is one network round trip.
type loginState int

const (
	stateStart loginState = iota
	stateCsrfFetched
	stateAuthorizeRedirected
	stateIdentifierPosted
	stateCredentialsPosted
	stateSessionFetched
	stateDone
)

// loginFlow carries the mutable context threaded between states: the CSRF
// token, the authorization query parameters (forwarded exactly as received,
// never regenerated), and the URL the next form post must target.
type loginFlow struct {
	http     *http.Client
	baseURL  string
	authURL  string
	logger   *slog.Logger
	username string
	password string

	csrfToken           string
	state               string
	clientID            string
	codeChallenge       string
	codeChallengeMethod string
	loginTarget         *url.URL
	accessToken         string
}

// Login executes the web login flow and stores the resulting bearer token
// as the process credential. Failures are terminal for the attempt: the
// caller decides whether to retry. Returns ErrInvalidCredentials or a
// *DeniedError for the two explicitly recognized rejections; anything else
// is a flow error.
func (c *Client) Login(ctx context.Context, username, password string) error {
	f := &loginFlow{
		http:     c.http,
		baseURL:  c.baseURL,
		authURL:  c.authBaseURL,
		logger:   c.logger,
		username: username,
		password: password,
	}

	for st := stateStart; st != stateDone; {
		next, err := f.step(ctx, st)
		if err != nil {
			return err
		}
		st = next
	}

	c.accessToken = f.accessToken
	c.logger.Info("login complete", "username", username)
	return nil
}

// step runs one state transition and returns the next state.
func (f *loginFlow) step(ctx context.Context, st loginState) (loginState, error) {
	switch st {
	case stateStart:
		return stateCsrfFetched, f.fetchCsrf(ctx)
	case stateCsrfFetched:
		return stateAuthorizeRedirected, f.authorize(ctx)
	case stateAuthorizeRedirected:
		return stateIdentifierPosted, f.postIdentifier(ctx)
	case stateIdentifierPosted:
		return stateCredentialsPosted, f.postCredentials(ctx)
	case stateCredentialsPosted:
		return stateSessionFetched, f.fetchSession(ctx)
	case stateSessionFetched:
		return stateDone, nil
	default:
		return stateDone, fmt.Errorf("unknown login state %d", st)
	}
}

// fetchCsrf loads the login page (establishing session cookies) and reads
// the CSRF token from the session endpoint.
func (f *loginFlow) fetchCsrf(ctx context.Context) error {
	resp, err := f.get(ctx, f.baseURL+"/auth/login")
	if err != nil {
		return fmt.Errorf("fetching login page: %w", err)
	}
	drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login page returned status %d", resp.StatusCode)
	}

	var csrf struct {
		CsrfToken string `json:"csrfToken"`
	}
	if err := f.getJSON(ctx, f.baseURL+"/api/auth/csrf", &csrf); err != nil {
		return fmt.Errorf("fetching csrf token: %w", err)
	}
	if csrf.CsrfToken == "" {
		return fmt.Errorf("csrf response missing token")
	}
	f.csrfToken = csrf.CsrfToken
	return nil
}

// authorize posts the CSRF token to the sign-in initiation endpoint, lifts
// state/client_id/code_challenge off the continuation URL, and requests the
// authorization URL built from them. A redirect response supersedes the
// continuation: state is re-extracted from the redirect target.
func (f *loginFlow) authorize(ctx context.Context) error {
	resp, err := f.postForm(ctx, f.baseURL+"/api/auth/signin/auth0?prompt=login", url.Values{
		"callbackUrl": {"/"},
		"csrfToken":   {f.csrfToken},
		"json":        {"true"},
	})
	if err != nil {
		return fmt.Errorf("initiating sign-in: %w", err)
	}
	var signIn struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(resp, &signIn); err != nil {
		return fmt.Errorf("parsing sign-in response: %w", err)
	}
	if signIn.URL == "" {
		return fmt.Errorf("sign-in response missing continuation url")
	}

	continuation, err := url.Parse(signIn.URL)
	if err != nil {
		return fmt.Errorf("parsing continuation url: %w", err)
	}
	q := continuation.Query()
	f.state = q.Get("state")
	f.clientID = q.Get("client_id")
	f.codeChallenge = q.Get("code_challenge")
	f.codeChallengeMethod = q.Get("code_challenge_method")
	if f.state == "" || f.clientID == "" || f.codeChallenge == "" {
		return fmt.Errorf("continuation url missing authorization parameters")
	}

	authQuery := url.Values{
		"client_id":             {f.clientID},
		"scope":                 {"openid email profile offline_access model.request model.read organization.read"},
		"response_type":         {"code"},
		"redirect_uri":          {f.baseURL + "/api/auth/callback/auth0"},
		"audience":              {"https://api.openai.com/v1"},
		"prompt":                {"login"},
		"state":                 {f.state},
		"code_challenge":        {f.codeChallenge},
		"code_challenge_method": {f.codeChallengeMethod},
	}
	authResp, err := f.get(ctx, f.authURL+"/authorize?"+authQuery.Encode())
	if err != nil {
		return fmt.Errorf("requesting authorization: %w", err)
	}
	drainClose(authResp)

	if authResp.StatusCode == http.StatusFound {
		target, err := redirectTarget(authResp)
		if err != nil {
			return fmt.Errorf("following authorize redirect: %w", err)
		}
		f.loginTarget = target
		if st := target.Query().Get("state"); st != "" {
			f.state = st
		}
		return nil
	}
	if authResp.StatusCode != http.StatusOK {
		return fmt.Errorf("authorize endpoint returned status %d", authResp.StatusCode)
	}
	return nil
}

// postIdentifier submits the username to the identifier-collection endpoint
// and follows its redirect to the credentials form.
func (f *loginFlow) postIdentifier(ctx context.Context) error {
	resp, err := f.postForm(ctx, f.authURL+"/u/login/identifier?state="+url.QueryEscape(f.state), url.Values{
		"state":                       {f.state},
		"username":                    {f.username},
		"js-available":                {"false"},
		"webauthn-available":          {"false"},
		"is-brave":                    {"true"},
		"webauthn-platform-available": {"false"},
		"action":                      {"default"},
	})
	if err != nil {
		return fmt.Errorf("posting identifier: %w", err)
	}
	drainClose(resp)

	if resp.StatusCode == http.StatusFound {
		target, err := redirectTarget(resp)
		if err != nil {
			return fmt.Errorf("following identifier redirect: %w", err)
		}
		f.loginTarget = target
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identifier endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// postCredentials submits username+password and follows the resulting
// redirect chain. A bad-request status means the credentials were rejected.
// A hop whose target carries an "error" query parameter means authorization
// was denied; the chain is bounded by maxRedirectHops.
func (f *loginFlow) postCredentials(ctx context.Context) error {
	if f.loginTarget == nil {
		return fmt.Errorf("no login target resolved from identifier step")
	}

	resp, err := f.postForm(ctx, f.loginTarget.String(), url.Values{
		"state":    {f.state},
		"username": {f.username},
		"password": {f.password},
		"action":   {"default"},
	})
	if err != nil {
		return fmt.Errorf("posting credentials: %w", err)
	}

	if resp.StatusCode == http.StatusBadRequest {
		drainClose(resp)
		return ErrInvalidCredentials
	}

	hops := 0
	for resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusTemporaryRedirect {
		target, err := redirectTarget(resp)
		drainClose(resp)
		if err != nil {
			return fmt.Errorf("following login redirect: %w", err)
		}

		if reason := target.Query().Get("error"); reason != "" {
			return &DeniedError{Reason: reason}
		}

		hops++
		if hops > maxRedirectHops {
			return fmt.Errorf("login redirect chain exceeded %d hops", maxRedirectHops)
		}

		f.logger.Debug("following login redirect", "hop", hops, "target", target.String())
		resp, err = f.get(ctx, target.String())
		if err != nil {
			return fmt.Errorf("following login redirect: %w", err)
		}
	}
	drainClose(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// fetchSession reads the access token minted for the established session.
func (f *loginFlow) fetchSession(ctx context.Context) error {
	var session struct {
		AccessToken string `json:"accessToken"`
	}
	if err := f.getJSON(ctx, f.baseURL+"/api/auth/session", &session); err != nil {
		return fmt.Errorf("fetching session token: %w", err)
	}
	if session.AccessToken == "" {
		return fmt.Errorf("session response missing access token")
	}
	f.accessToken = session.AccessToken
	return nil
}

func (f *loginFlow) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return f.http.Do(req)
}

func (f *loginFlow) postForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.http.Do(req)
}

func (f *loginFlow) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

// decodeJSON reads a 2xx JSON body into v and always closes the response.
func decodeJSON(resp *http.Response, v any) error {
	defer drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// redirectTarget resolves the Location header against the request URL,
// handling relative targets.
func redirectTarget(resp *http.Response) (*url.URL, error) {
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, fmt.Errorf("redirect response missing Location header")
	}
	target, err := url.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("parsing Location %q: %w", loc, err)
	}
	return resp.Request.URL.ResolveReference(target), nil
}

// drainClose discards any unread body and closes it so the connection can
// be reused.
func drainClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
}
