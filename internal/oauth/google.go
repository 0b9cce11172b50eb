package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

// GoogleRefresher runs the refresh_token grant against Google's token endpoint.
type GoogleRefresher struct {
	cfg    *oauth2.Config
	client *http.Client
}

// NewGoogleRefresher builds a refresher. tokenURL may be empty for Google's
// production endpoint; client may be nil for http.DefaultClient.
func NewGoogleRefresher(clientID, clientSecret, tokenURL string, client *http.Client) *GoogleRefresher {
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	return &GoogleRefresher{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

func (r *GoogleRefresher) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}
	tok, err := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return RefreshResult{}, classifyRefreshError(err)
	}
	return RefreshResult{
		AccessToken:  tok.AccessToken,
		Expiry:       tok.Expiry,
		RefreshToken: tok.RefreshToken,
	}, nil
}

func classifyRefreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		switch {
		case re.ErrorCode == "invalid_grant":
			return fmt.Errorf("%w: %v", ErrRevoked, err)
		case status == http.StatusTooManyRequests || status >= 500:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		default:
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
