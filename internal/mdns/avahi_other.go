//go:build !linux

package mdns

import "context"

// AvahiAnnouncer is unavailable outside Linux.
type AvahiAnnouncer struct{}

// NewAvahiAnnouncer always fails outside Linux.
func NewAvahiAnnouncer() (*AvahiAnnouncer, error) {
	return nil, ErrUnavailable
}

func (a *AvahiAnnouncer) Announce(context.Context, *Service) error { return ErrUnavailable }

func (a *AvahiAnnouncer) Close() error { return nil }
