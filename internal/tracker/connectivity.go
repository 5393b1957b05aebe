package tracker

import (
	"net"

	"github.com/tevino/abool/v2"
)

// Link reports whether the network transport is currently usable.
// Bringing the link up is the transport's job, not the tracker's.
type Link interface {
	Connected() bool
}

// LinkFunc adapts a function to the Link interface.
type LinkFunc func() bool

// Connected calls f.
func (f LinkFunc) Connected() bool {
	return f()
}

// AlwaysOnline is a link for wired installations.
type AlwaysOnline struct{}

// Connected always returns true.
func (AlwaysOnline) Connected() bool {
	return true
}

// InterfaceLink is connected while the named interface is up and has an address.
type InterfaceLink struct {
	Name string
}

// Connected inspects the interface.
func (l InterfaceLink) Connected() bool {
	iface, err := net.InterfaceByName(l.Name)
	if err != nil || iface.Flags&net.FlagUp == 0 {
		return false
	}
	addrs, err := iface.Addrs()
	return err == nil && len(addrs) > 0
}

// Connectivity caches the link state sampled once per tick.
type Connectivity struct {
	link   Link
	online *abool.AtomicBool
}

// NewConnectivity creates a signal that starts offline.
func NewConnectivity(link Link) *Connectivity {
	if link == nil {
		link = AlwaysOnline{}
	}
	return &Connectivity{
		link:   link,
		online: abool.New(),
	}
}

// Refresh samples the link and returns the new state.
func (c *Connectivity) Refresh() bool {
	online := c.link.Connected()
	c.online.SetTo(online)
	return online
}

// IsOnline returns the state from the last Refresh.
func (c *Connectivity) IsOnline() bool {
	return c.online.IsSet()
}
