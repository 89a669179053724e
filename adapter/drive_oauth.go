package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewDriveAdapterOAuth builds a Drive adapter from an OAuth client secret
// plus a previously saved user token. Personal Drive content is only
// reachable through user consent; service accounts see their own empty
// Drive.
func NewDriveAdapterOAuth(ctx context.Context, credentialsFile, tokenFile string) (*DriveAdapter, error) {
	secret, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client secret: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secret, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client secret: %w", err)
	}

	token, err := loadToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("load oauth token (run the consent flow first): %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &DriveAdapter{svc: svc}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

// SaveToken writes an exchanged token next to the client secret so later
// runs skip the consent flow.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
