// Package credentials resolves account passwords from the OS keyring,
// environment variables, or the server URL, in that priority order.
package credentials

import (
	"fmt"
	"net/url"

	"caldavtasks/store"
)

// Source indicates where credentials were found
type Source string

const (
	SourceKeyring Source = "keyring"
	SourceEnv     Source = "env"
	SourceURL     Source = "url"
	SourceConfig  Source = "config"
)

// Credentials represents resolved authentication credentials
type Credentials struct {
	Username string
	Password string
	Source   Source
}

// Resolve finds credentials for an account using the priority order:
// keyring, environment variables, credentials embedded in the server URL,
// then a password stored directly on the account.
func Resolve(account store.Account) (*Credentials, error) {
	if account.Name == "" {
		return nil, fmt.Errorf("account name is required for credential resolution")
	}

	if account.Username != "" && IsAvailable() {
		if password, err := Get(account.Name, account.Username); err == nil {
			return &Credentials{
				Username: account.Username,
				Password: password,
				Source:   SourceKeyring,
			}, nil
		}
		// Keyring miss is not fatal, fall through to the next source.
	}

	if HasEnvCredentials(account.Name) {
		return &Credentials{
			Username: EnvUsername(account.Name),
			Password: EnvPassword(account.Name),
			Source:   SourceEnv,
		}, nil
	}

	if parsed, err := url.Parse(account.ServerURL); err == nil && parsed.User != nil {
		username := parsed.User.Username()
		password, _ := parsed.User.Password()
		if username != "" && password != "" {
			return &Credentials{
				Username: username,
				Password: password,
				Source:   SourceURL,
			}, nil
		}
	}

	if account.Username != "" && account.Password != "" {
		return &Credentials{
			Username: account.Username,
			Password: account.Password,
			Source:   SourceConfig,
		}, nil
	}

	return nil, fmt.Errorf("no credentials found for account %q (tried: keyring, environment variables, server URL, config)", account.Name)
}

// Apply resolves credentials for the account and returns a copy with the
// username and password filled in, ready to hand to the connector.
func Apply(account store.Account) (store.Account, error) {
	creds, err := Resolve(account)
	if err != nil {
		return account, err
	}
	account.Username = creds.Username
	account.Password = creds.Password
	return account, nil
}
