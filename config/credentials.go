package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when the credentials file is readable
// by anyone but its owner.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds broker login details loaded from a TOML file:
//
//	[broker]
//	username = "monitor"
//	password = "secret"
type Credentials struct {
	Broker BrokerCreds `toml:"broker"`
}

// BrokerCreds holds the MQTT username and password.
type BrokerCreds struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// LoadCredentials reads a credentials file.
// Returns ErrInsecurePermissions unless the file mode is 0400.
func LoadCredentials(path string) (*Credentials, error) {
	// Check file permissions (Unix only)
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		mode := info.Mode().Perm()
		if mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var creds Credentials
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}
