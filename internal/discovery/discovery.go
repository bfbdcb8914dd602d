package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// DefaultServiceName is the mDNS service advertised by fleet devices
	DefaultServiceName = "_fleet-device._sub._ssh._tcp"

	// DefaultTimeout bounds a single scan
	DefaultTimeout = 5 * time.Second
)

// LocalDevice is a device found on the local network
type LocalDevice struct {
	Hostname string            `json:"hostname"`
	Address  string            `json:"address"`
	Port     int               `json:"port"`
	Info     map[string]string `json:"info,omitempty"`
}

// String is the label shown in device pickers
func (d LocalDevice) String() string {
	if d.Hostname == "" {
		return d.Address
	}
	return fmt.Sprintf("%s (%s)", d.Hostname, d.Address)
}

// Scanner browses the local network for fleet devices
type Scanner struct {
	serviceType string
	query       func(*mdns.QueryParam) error
}

// NewScanner creates a scanner for serviceType, or DefaultServiceName when empty
func NewScanner(serviceType string) *Scanner {
	if serviceType == "" {
		serviceType = DefaultServiceName
	}
	return &Scanner{
		serviceType: serviceType,
		query:       mdns.Query,
	}
}

// Scan queries the network for timeout and returns the devices that answered,
// sorted by hostname. Duplicate answers for the same host and address are
// collapsed.
func (s *Scanner) Scan(ctx context.Context, timeout time.Duration) ([]LocalDevice, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	found := make(map[string]LocalDevice)
	var foundMu sync.Mutex
	entriesCh := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entriesCh:
				if !ok {
					return
				}
				dev, ok := fromEntry(entry)
				if !ok {
					continue
				}
				foundMu.Lock()
				found[dev.Hostname+"|"+dev.Address] = dev
				foundMu.Unlock()
			case <-ctx.Done():
				// keep draining so the query never blocks on a full channel
				for range entriesCh {
				}
				return
			}
		}
	}()

	params := mdns.DefaultParams(s.serviceType)
	params.Timeout = timeout
	params.Entries = entriesCh
	params.DisableIPv6 = true

	err := s.query(params)
	close(entriesCh)
	<-done

	if err != nil {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	foundMu.Lock()
	defer foundMu.Unlock()

	result := make([]LocalDevice, 0, len(found))
	for _, dev := range found {
		result = append(result, dev)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Hostname == result[j].Hostname {
			return result[i].Address < result[j].Address
		}
		return result[i].Hostname < result[j].Hostname
	})

	return result, nil
}

func fromEntry(entry *mdns.ServiceEntry) (LocalDevice, bool) {
	if entry == nil {
		return LocalDevice{}, false
	}

	var addr net.IP
	switch {
	case entry.AddrV4 != nil:
		addr = entry.AddrV4
	case entry.AddrV6 != nil:
		addr = entry.AddrV6
	default:
		addr = entry.Addr
	}
	if addr == nil {
		return LocalDevice{}, false
	}

	// Copy InfoFields to avoid race with mdns library
	infoFields := make([]string, len(entry.InfoFields))
	copy(infoFields, entry.InfoFields)

	info := make(map[string]string)
	for _, field := range infoFields {
		key, value, ok := strings.Cut(field, "=")
		if ok {
			info[key] = value
		}
	}

	return LocalDevice{
		Hostname: strings.TrimSuffix(entry.Host, "."),
		Address:  addr.String(),
		Port:     entry.Port,
		Info:     info,
	}, true
}
