package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"
)

// authorizeTimeout bounds the wait for the browser redirect.
const authorizeTimeout = 5 * time.Minute

// Authorize runs the browser-driven authorization-code flow: it starts
// a one-shot callback listener on the configured redirect URL, opens
// the browser, waits for the redirect, and exchanges the code for a
// persisted credential.
func (m *Manager) Authorize(ctx context.Context) error {
	u, err := url.Parse(m.config.RedirectURL)
	if err != nil {
		return fmt.Errorf("parse redirect URL: %w", err)
	}

	// Random state for CSRF protection.
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return fmt.Errorf("generate state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle(u.Path, callbackHandler(state, codeChan, errChan))
	server := &http.Server{Addr: u.Host, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := m.AuthURL(state)
	fmt.Printf("Opening browser for authorization...\n")
	fmt.Printf("If the browser does not open, visit:\n%s\n\n", authURL)

	if err := openBrowser(authURL); err != nil {
		m.logger.Warn("failed to open browser", "error", err)
	}

	select {
	case code := <-codeChan:
		return m.Exchange(ctx, code)
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(authorizeTimeout):
		return errors.New("authorization timed out, please try again")
	}
}

// callbackHandler captures the one-time code or error query parameter
// from the OAuth redirect. The surrounding flow shuts the listener down
// after the first delivery.
func callbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if errParam := q.Get("error"); errParam != "" {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, failurePage,
				html.EscapeString(errParam), html.EscapeString(q.Get("error_description")))
			errChan <- fmt.Errorf("authorization refused: %s", errParam)
			return
		}

		if q.Get("state") != expectedState {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errChan <- errors.New("state mismatch: possible CSRF attack")
			return
		}

		code := q.Get("code")
		if code == "" {
			http.Error(w, "no authorization code received", http.StatusBadRequest)
			errChan <- errors.New("callback carried no authorization code")
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, successPage)
		codeChan <- code
	}
}

const successPage = `<html>
<head><title>Authorization Successful</title></head>
<body>
<h2>Authorization Successful!</h2>
<p>You can close this window and return to the application.</p>
</body>
</html>
`

const failurePage = `<html>
<head><title>Authorization Failed</title></head>
<body>
<h2>Authorization Failed</h2>
<p>Error: %s</p>
<p>Description: %s</p>
<p>Please try again.</p>
</body>
</html>
`

// openBrowser opens the default browser to the given URL.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
