// Package mdns announces the web surface on the local network through Avahi.
package mdns

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned when no Avahi daemon can be reached.
var ErrUnavailable = errors.New("avahi is not available")

// Service is a DNS-SD registration.
type Service struct {
	Name string
	Type string
	Port int
	TXT  []string
}

// Announcer publishes a service until closed.
type Announcer interface {
	Announce(ctx context.Context, service *Service) error
	Close() error
}

// NewHTTPService describes the upload page listening on port.
func NewHTTPService(name string, port int, txt ...string) (*Service, error) {
	if name == "" {
		return nil, errors.New("service name must be provided")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid service port %d", port)
	}

	return &Service{
		Name: name,
		Type: "_http._tcp",
		Port: port,
		TXT:  txt,
	}, nil
}

// txtRecords converts key=value strings to the byte arrays Avahi expects.
func (s *Service) txtRecords() [][]byte {
	records := make([][]byte, 0, len(s.TXT))
	for _, txt := range s.TXT {
		if txt == "" {
			continue
		}
		records = append(records, []byte(txt))
	}
	return records
}
