package credentials

import (
	"os"
	"strings"
)

// normalizeAccountName converts an account name to the format used in
// environment variables. Example: "nextcloud-work" becomes "NEXTCLOUD_WORK".
func normalizeAccountName(accountName string) string {
	normalized := strings.ToUpper(accountName)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	return normalized
}

// envVarName returns the environment variable name for an account field
func envVarName(accountName, field string) string {
	return "CALDAVTASKS_" + normalizeAccountName(accountName) + "_" + strings.ToUpper(field)
}

// EnvUsername retrieves the username from environment variables.
// Looks for: CALDAVTASKS_{ACCOUNT_NAME}_USERNAME
func EnvUsername(accountName string) string {
	if accountName == "" {
		return ""
	}
	return os.Getenv(envVarName(accountName, "USERNAME"))
}

// EnvPassword retrieves the password from environment variables.
// Looks for: CALDAVTASKS_{ACCOUNT_NAME}_PASSWORD
func EnvPassword(accountName string) string {
	if accountName == "" {
		return ""
	}
	return os.Getenv(envVarName(accountName, "PASSWORD"))
}

// EnvServerURL retrieves the server URL from environment variables.
// Looks for: CALDAVTASKS_{ACCOUNT_NAME}_URL
func EnvServerURL(accountName string) string {
	if accountName == "" {
		return ""
	}
	return os.Getenv(envVarName(accountName, "URL"))
}

// HasEnvCredentials checks if credentials exist in environment variables
func HasEnvCredentials(accountName string) bool {
	return EnvUsername(accountName) != "" && EnvPassword(accountName) != ""
}
