//go:build linux

package mdns

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	avahiService    = "org.freedesktop.Avahi"
	avahiServer     = avahiService + ".Server"
	avahiEntryGroup = avahiService + ".EntryGroup"
)

// AvahiAnnouncer publishes services through Avahi's DBus interface.
type AvahiAnnouncer struct {
	conn  *dbus.Conn
	group dbus.ObjectPath
}

// NewAvahiAnnouncer connects to the system bus and checks that Avahi answers.
func NewAvahiAnnouncer() (*AvahiAnnouncer, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var version string
	if err := conn.Object(avahiService, "/").Call(avahiServer+".GetVersionString", 0).Store(&version); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &AvahiAnnouncer{conn: conn}, nil
}

// Announce adds service to a new entry group and commits it.
func (a *AvahiAnnouncer) Announce(ctx context.Context, service *Service) error {
	var group dbus.ObjectPath
	if err := a.conn.Object(avahiService, "/").CallWithContext(ctx, avahiServer+".EntryGroupNew", 0).Store(&group); err != nil {
		return fmt.Errorf("failed to create entry group: %w", err)
	}
	a.group = group

	obj := a.conn.Object(avahiService, group)

	// interface and protocol -1 mean all interfaces, IPv4 and IPv6;
	// empty domain and host mean .local and the system hostname.
	err := obj.CallWithContext(ctx, avahiEntryGroup+".AddService", 0,
		int32(-1), int32(-1), uint32(0),
		service.Name, service.Type, "", "",
		uint16(service.Port), service.txtRecords(),
	).Store()
	if err != nil {
		return fmt.Errorf("failed to add service: %w", err)
	}

	if err := obj.CallWithContext(ctx, avahiEntryGroup+".Commit", 0).Store(); err != nil {
		return fmt.Errorf("failed to commit entry group: %w", err)
	}

	return nil
}

// Close withdraws the announcement and closes the bus connection.
func (a *AvahiAnnouncer) Close() error {
	var err error
	if a.group != "" {
		obj := a.conn.Object(avahiService, a.group)
		if err = obj.Call(avahiEntryGroup+".Reset", 0).Store(); err == nil {
			err = obj.Call(avahiEntryGroup+".Free", 0).Store()
		}
		a.group = ""
	}

	if cerr := a.conn.Close(); err == nil {
		err = cerr
	}

	return err
}
