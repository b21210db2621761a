package agent

import (
	"context"
	"os"
	"strings"

	"github.com/vinayprograms/hostwatch/errors"
)

// MACSource looks up the host's hardware address.
type MACSource interface {
	MACAddress(ctx context.Context) (string, error)
}

// hostname is replaced in tests.
var hostname = os.Hostname

// ResolveID picks the agent identity: the configured id if set, else the
// MAC address when useMAC is set and one is available, else the hostname.
func ResolveID(ctx context.Context, configured string, useMAC bool, macs MACSource) (string, error) {
	if id := strings.TrimSpace(configured); id != "" {
		return id, nil
	}
	if useMAC && macs != nil {
		if mac, err := macs.MACAddress(ctx); err == nil && mac != "" {
			return mac, nil
		}
	}
	name, err := hostname()
	if err != nil || name == "" {
		return "", errors.Config("could not determine agent id; set id in the configuration",
			errors.WithCause(err))
	}
	return name, nil
}
