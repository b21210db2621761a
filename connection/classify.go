package connection

import (
	stderrors "errors"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/vinayprograms/hostwatch/errors"
)

// syscallResolve is the tag reported for name-resolution failures.
const syscallResolve = "getaddrinfo"

// classify turns a handshake failure into a structured error carrying the
// broker address and the failing syscall. Resolution failures are always
// fatal; connect failures are fatal only when fatalConnect is set.
func classify(err error, cfg Config, fatalConnect bool) *errors.Error {
	meta := map[string]string{
		"host": cfg.Host,
		"port": strconv.Itoa(cfg.Port),
	}

	if isResolutionFailure(err) {
		meta["syscall"] = syscallResolve
		meta["description"] = "could not resolve broker host " + cfg.Host
		return errors.Resolution("broker address could not be resolved",
			errors.WithCause(err),
			errors.WithMetadataMap(meta),
			errors.WithFatal(),
		)
	}

	meta["syscall"] = syscallOf(err)
	meta["description"] = errors.ErrCodeConnect.Description()

	opts := []errors.Option{
		errors.WithCause(err),
		errors.WithMetadataMap(meta),
	}
	if fatalConnect {
		opts = append(opts, errors.WithFatal())
	}
	return errors.Connect("could not connect to broker", opts...)
}

func isResolutionFailure(err error) bool {
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}
	// Some clients flatten the resolver error into a string.
	msg := err.Error()
	return strings.Contains(msg, "no such host") || strings.Contains(msg, syscallResolve)
}

func syscallOf(err error) string {
	var sysErr *os.SyscallError
	if stderrors.As(err, &sysErr) {
		return sysErr.Syscall
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) && opErr.Op != "" {
		return opErr.Op
	}
	return "connect"
}
