package lastfm

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	// AuthCallbackPort is the port used for the local auth callback server.
	AuthCallbackPort = 9847

	// AuthTimeout bounds how long Link waits for the user to authorize.
	AuthTimeout = 5 * time.Minute
)

// GetToken requests an authentication token from Last.fm.
func (c *Client) GetToken() (string, error) {
	result, err := c.api.GetToken()
	if err != nil {
		return "", fmt.Errorf("get token: %w", mapError(err))
	}
	return result, nil
}

// GetAuthURL returns the URL for user authorization. With a callback URL
// Last.fm redirects there with the token; without one the user returns to
// the terminal and confirms (desktop auth flow).
func (c *Client) GetAuthURL(token, callback string) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	if token != "" {
		q.Set("token", token)
	}
	if callback != "" {
		q.Set("cb", callback)
	}
	return "https://www.last.fm/api/auth/?" + q.Encode()
}

// GetSession exchanges an authorized token for a session key and stores it
// on the client.
func (c *Client) GetSession(token string) (username, sessionKey string, err error) {
	if err := c.api.LoginWithToken(token); err != nil {
		return "", "", fmt.Errorf("get session: %w", mapError(err))
	}
	sessionKey = c.api.GetSessionKey()

	username = "unknown"
	// Session is valid even if user.getInfo is temporarily unavailable.
	if info, err := c.api.User.GetInfo(nil); err == nil {
		username = info.Name
	}

	c.SetSession(username, sessionKey)
	return username, sessionKey, nil
}

// AuthServer receives the browser redirect after the user authorizes.
type AuthServer struct {
	server    *http.Server
	listener  net.Listener
	tokenChan chan string
	done      chan struct{}
}

// StartAuthServer starts a local HTTP server on addr to receive the
// callback. An empty addr listens on AuthCallbackPort.
func StartAuthServer(addr string) (*AuthServer, error) {
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", AuthCallbackPort)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	as := &AuthServer{
		listener:  listener,
		tokenChan: make(chan string, 1),
		done:      make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Get("/callback", as.handleCallback)
	as.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		_ = as.server.Serve(listener)
		close(as.done)
	}()

	return as, nil
}

func (as *AuthServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	w.Header().Set("Content-Type", "text/html")
	title, body := "Authorization Successful!", "You can close this window and return to scrobd."
	if token == "" {
		title, body = "Authorization Failed", "No token received. Please try again."
	}
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>scrobd - Last.fm Authorization</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, title, body)

	if token == "" {
		return
	}
	select {
	case as.tokenChan <- token:
	default:
	}
}

// CallbackURL is the URL Last.fm should redirect to.
func (as *AuthServer) CallbackURL() string {
	return "http://" + as.listener.Addr().String() + "/callback"
}

// TokenChan returns the channel that receives the auth token.
func (as *AuthServer) TokenChan() <-chan string {
	return as.tokenChan
}

// Shutdown stops the auth server.
func (as *AuthServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = as.server.Shutdown(ctx)
	<-as.done
}

// WaitForToken blocks until a token arrives, ctx is done or timeout
// passes. It returns an empty string when no token was received.
func WaitForToken(ctx context.Context, tokens <-chan string, timeout time.Duration) string {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case token := <-tokens:
		return token
	case <-timer.C:
		return ""
	case <-ctx.Done():
		return ""
	}
}

// Link runs the browser authorization flow and returns the new session.
// open is called with the authorization URL, typically OpenBrowser.
func (c *Client) Link(ctx context.Context, open func(string) error) (username, sessionKey string, err error) {
	server, err := StartAuthServer("")
	if err != nil {
		return "", "", err
	}
	defer server.Shutdown()

	authURL := c.GetAuthURL("", server.CallbackURL())
	if err := open(authURL); err != nil {
		c.logger.Warn("could not open browser", "url", authURL, "error", err)
	}

	token := WaitForToken(ctx, server.TokenChan(), AuthTimeout)
	if token == "" {
		return "", "", fmt.Errorf("no authorization received within %s", AuthTimeout)
	}
	return c.GetSession(token)
}

// OpenBrowser opens the given URL in the default browser.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
