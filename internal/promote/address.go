package promote

import (
	"net"
	"strings"

	"golang.org/x/net/idna"

	"fleetcloud.sh/internal/ferrors"
)

const localDomain = ".local"

// ErrInvalidAddress is the message for device addresses that are neither
// an IP address nor a local hostname
const ErrInvalidAddress = "The parameter must be a local hostname or an IP address"

// ParseLocalHostnameOrIP validates a device address. IP addresses are
// returned in canonical form, local hostnames ("name.local") in lower-case
// ASCII. An empty input is returned unchanged.
func ParseLocalHostnameOrIP(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}

	if ip := net.ParseIP(input); ip != nil {
		return ip.String(), nil
	}

	host, err := idna.Lookup.ToASCII(strings.TrimSuffix(input, "."))
	if err != nil {
		return "", ferrors.Expected(ErrInvalidAddress)
	}
	host = strings.ToLower(host)

	if !strings.HasSuffix(host, localDomain) {
		return "", ferrors.Expected(ErrInvalidAddress)
	}
	name := strings.TrimSuffix(host, localDomain)
	if name == "" {
		return "", ferrors.Expected(ErrInvalidAddress)
	}
	for _, label := range strings.Split(name, ".") {
		if !validLabel(label) {
			return "", ferrors.Expected(ErrInvalidAddress)
		}
	}

	return host, nil
}

func validLabel(label string) bool {
	if len(label) == 0 || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}
