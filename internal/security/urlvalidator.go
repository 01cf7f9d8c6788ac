package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultImageHosts are the hosts a hosted image link may point at.
var DefaultImageHosts = []string{"i.imgur.com", "imgur.com"}

var (
	ErrPrivateIP     = errors.New("URL resolves to private IP address")
	ErrUntrustedHost = errors.New("URL host is not trusted")
	ErrInvalidScheme = errors.New("only HTTPS URLs are allowed")
)

// URLValidator checks that an image URL can be fetched by a remote service:
// HTTPS, not resolving to a private address and, in strict mode, on an
// allowed host.
type URLValidator struct {
	allowedHosts []string
	strict       bool
	lookupIP     func(host string) ([]net.IP, error)
}

// NewURLValidator returns a validator for hosts, or DefaultImageHosts when
// none are given.
func NewURLValidator(strict bool, hosts ...string) *URLValidator {
	if len(hosts) == 0 {
		hosts = DefaultImageHosts
	}
	return &URLValidator{
		allowedHosts: hosts,
		strict:       strict,
		lookupIP:     net.LookupIP,
	}
}

// WithResolver returns a copy that resolves host names with lookup.
func (v *URLValidator) WithResolver(lookup func(host string) ([]net.IP, error)) *URLValidator {
	cp := *v
	cp.lookupIP = lookup
	return &cp
}

func (v *URLValidator) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "https" {
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	if v.strict && !v.isAllowedHost(host) {
		return ErrUntrustedHost
	}

	return v.validateHostIP(host)
}

func (v *URLValidator) isAllowedHost(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range v.allowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (v *URLValidator) validateHostIP(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
		return nil
	}

	ips, err := v.lookupIP(host)
	if err != nil {
		return nil
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return ErrPrivateIP
		}
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 0: // 0.0.0.0/8
			return true
		case ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127: // 100.64.0.0/10 (CGNAT)
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 0: // 192.0.0.0/24
			return true
		case ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 2: // 192.0.2.0/24 (TEST-NET-1)
			return true
		case ip4[0] == 198 && ip4[1] == 51 && ip4[2] == 100: // 198.51.100.0/24 (TEST-NET-2)
			return true
		case ip4[0] == 203 && ip4[1] == 0 && ip4[2] == 113: // 203.0.113.0/24 (TEST-NET-3)
			return true
		case ip4[0] >= 224 && ip4[0] <= 239: // 224.0.0.0/4 (Multicast)
			return true
		case ip4[0] >= 240: // 240.0.0.0/4 (Reserved)
			return true
		}
	}

	return false
}
