package credentials

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringService is the service name for all caldavtasks keyring entries
const keyringService = "caldavtasks"

// serviceName returns the keyring service name for an account
func serviceName(accountName string) string {
	return fmt.Sprintf("%s-%s", keyringService, accountName)
}

// Set stores a password in the OS keyring
func Set(accountName, username, password string) error {
	if accountName == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if err := keyring.Set(serviceName(accountName), username, password); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}
	return nil
}

// Get retrieves a password from the OS keyring
func Get(accountName, username string) (string, error) {
	if accountName == "" {
		return "", fmt.Errorf("account name cannot be empty")
	}
	if username == "" {
		return "", fmt.Errorf("username cannot be empty")
	}

	password, err := keyring.Get(serviceName(accountName), username)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", fmt.Errorf("no password found in keyring for account %q and user %q", accountName, username)
		}
		return "", fmt.Errorf("failed to retrieve password from keyring: %w", err)
	}
	return password, nil
}

// Delete removes a password from the OS keyring
func Delete(accountName, username string) error {
	if accountName == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if err := keyring.Delete(serviceName(accountName), username); err != nil {
		if err == keyring.ErrNotFound {
			return fmt.Errorf("no password found in keyring for account %q and user %q", accountName, username)
		}
		return fmt.Errorf("failed to delete password from keyring: %w", err)
	}
	return nil
}

// IsAvailable checks if the keyring is accessible. A probe for a
// non-existent entry returning ErrNotFound means the keyring itself works.
func IsAvailable() bool {
	_, err := keyring.Get("caldavtasks-keyring-probe", "probe")
	return err == nil || err == keyring.ErrNotFound
}
