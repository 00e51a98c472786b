package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/oauth2"
)

const (
	// TwitterBaseURL is the default Twitter API address.
	TwitterBaseURL = "https://api.twitter.com"

	// MaxTweetRunes is the longest message Twitter accepts.
	MaxTweetRunes = 280
)

// TwitterOptions configures the Twitter sink.
type TwitterOptions struct {
	HTTPOptions

	// BaseURL overrides TwitterBaseURL
	BaseURL string

	// AccessToken is an OAuth 2.0 user-context token with tweet.write scope
	AccessToken string

	// RefreshToken, ClientID and ClientSecret enable token refresh
	RefreshToken string
	ClientID     string
	ClientSecret string

	// TokenFile stores the rotated token between runs
	TokenFile string
}

// TwitterClient posts messages as tweets through the v2 API.
type TwitterClient struct {
	httpSink
	baseURL string
}

// NewTwitterClient creates a Twitter sink. When a refresh token is
// configured, the access token is fetched from {BaseURL}/2/oauth2/token on
// first use and refreshed when it expires. Twitter rotates refresh tokens,
// so with a TokenFile the latest token is saved there and preferred over
// the configured one on the next start.
func NewTwitterClient(opts TwitterOptions) *TwitterClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = TwitterBaseURL
	}

	base := opts.Client
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	c := &TwitterClient{
		httpSink: newHTTPSink("twitter", opts.HTTPOptions),
		baseURL:  baseURL,
	}

	var ts oauth2.TokenSource
	if opts.RefreshToken != "" {
		conf := &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}

		// The configured access token has an unknown expiry; start from
		// the refresh token so the first call always gets a fresh one.
		seed := &oauth2.Token{RefreshToken: opts.RefreshToken}
		if saved, err := readToken(opts.TokenFile); err != nil {
			c.logger.Warn("ignoring saved token", "path", opts.TokenFile, "error", err)
		} else if saved != nil {
			seed = saved
		}

		ts = conf.TokenSource(ctx, seed)
		if opts.TokenFile != "" {
			ts = &savingTokenSource{src: ts, path: opts.TokenFile, last: seed.RefreshToken, logger: c.logger}
		}
	} else {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken, TokenType: "Bearer"})
	}

	c.client = oauth2.NewClient(ctx, ts)
	return c
}

// savingTokenSource writes the token to path whenever the refresh token
// changes.
type savingTokenSource struct {
	src    oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.RefreshToken == "" || tok.RefreshToken == s.last {
		return tok, nil
	}
	if err := writeToken(s.path, tok); err != nil {
		s.logger.Error("failed to save rotated token", "path", s.path, "error", err)
		return tok, nil
	}
	s.last = tok.RefreshToken
	s.logger.Info("rotated token saved", "path", s.path)
	return tok, nil
}

// readToken returns nil without error when path is empty or missing.
func readToken(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, errors.New("token file has no refresh token")
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Name implements Sink.
func (c *TwitterClient) Name() string { return c.name }

// Send posts message as a tweet. Messages over MaxTweetRunes are rejected
// without contacting the API.
func (c *TwitterClient) Send(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return &NotificationError{Kind: Permanent, Backend: c.name, Err: ErrEmptyMessage}
	}
	if n := utf8.RuneCountInString(message); n > MaxTweetRunes {
		return &NotificationError{Kind: Permanent, Backend: c.name, Err: fmt.Errorf("message is %d characters, limit is %d", n, MaxTweetRunes)}
	}

	body, err := c.postJSON(ctx, c.baseURL+"/2/tweets", map[string]string{"text": message}, nil)
	if err != nil {
		return err
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if json.Unmarshal(body, &created) == nil && created.Data.ID != "" {
		c.logger.Info("tweet posted", "id", created.Data.ID)
	} else {
		c.logger.Info("tweet posted")
	}
	return nil
}
