package geofence

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
	"github.com/timely-app/timelyd/internal/models"
)

// Locator is the region-monitoring capability surface implemented by a
// platform helper binary. timelyd talks to exactly one locator per process,
// selected once at startup.
type Locator interface {
	Available() bool
	StartMonitoring(region models.GeofenceRegion) (bool, error)
	StopMonitoring(identifier string) (bool, error)
	StopAllMonitoring() (bool, error)
	MonitoredRegions() ([]string, error)
	RequestAlwaysAuthorization() (models.PermissionStatus, error)
	HasAlwaysAuthorization() (bool, error)
	NextEvent(timeoutMillis int) (BridgeEvent, error)
	Close() error
}

// EventKind discriminates the multiplexed native event channels.
type EventKind string

const (
	EventEnter EventKind = "enter"
	EventExit  EventKind = "exit"
	EventError EventKind = "error"
	EventNone  EventKind = "none"
)

// BridgeEvent carries one long-polled native event. Kind EventNone means the
// poll timed out without an event.
type BridgeEvent struct {
	Kind  EventKind
	Event models.GeofenceEvent
	Err   models.GeofenceError
}

// Handshake guards against launching an arbitrary binary as a locator helper.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "TIMELYD_LOCATOR",
	MagicCookieValue: "c2f1a0e6-geofence",
}

const PluginName = "locator"

// LocatorPlugin adapts a Locator to go-plugin's net/rpc protocol.
type LocatorPlugin struct {
	Impl Locator
}

func (p *LocatorPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &locatorRPCServer{impl: p.Impl}, nil
}

func (p *LocatorPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &locatorRPCClient{client: c}, nil
}

// ServeLocator is the entry point for helper binaries.
func ServeLocator(impl Locator) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &LocatorPlugin{Impl: impl},
		},
	})
}

type StartMonitoringArgs struct {
	Region models.GeofenceRegion
}

type BoolReply struct {
	OK bool
}

type RegionsReply struct {
	Identifiers []string
}

type AuthorizationReply struct {
	Status models.PermissionStatus
}

type NextEventArgs struct {
	TimeoutMillis int
}

type NextEventReply struct {
	Event BridgeEvent
}

type locatorRPCClient struct {
	client *rpc.Client
}

func (c *locatorRPCClient) Available() bool {
	return true
}

func (c *locatorRPCClient) StartMonitoring(region models.GeofenceRegion) (bool, error) {
	var reply BoolReply
	err := c.client.Call("Plugin.StartMonitoring", &StartMonitoringArgs{Region: region}, &reply)
	return reply.OK, err
}

func (c *locatorRPCClient) StopMonitoring(identifier string) (bool, error) {
	var reply BoolReply
	err := c.client.Call("Plugin.StopMonitoring", identifier, &reply)
	return reply.OK, err
}

func (c *locatorRPCClient) StopAllMonitoring() (bool, error) {
	var reply BoolReply
	err := c.client.Call("Plugin.StopAllMonitoring", new(struct{}), &reply)
	return reply.OK, err
}

func (c *locatorRPCClient) MonitoredRegions() ([]string, error) {
	var reply RegionsReply
	err := c.client.Call("Plugin.MonitoredRegions", new(struct{}), &reply)
	return reply.Identifiers, err
}

func (c *locatorRPCClient) RequestAlwaysAuthorization() (models.PermissionStatus, error) {
	var reply AuthorizationReply
	err := c.client.Call("Plugin.RequestAlwaysAuthorization", new(struct{}), &reply)
	if reply.Status == "" {
		reply.Status = models.PermissionUnknown
	}
	return reply.Status, err
}

func (c *locatorRPCClient) HasAlwaysAuthorization() (bool, error) {
	var reply BoolReply
	err := c.client.Call("Plugin.HasAlwaysAuthorization", new(struct{}), &reply)
	return reply.OK, err
}

func (c *locatorRPCClient) NextEvent(timeoutMillis int) (BridgeEvent, error) {
	var reply NextEventReply
	err := c.client.Call("Plugin.NextEvent", &NextEventArgs{TimeoutMillis: timeoutMillis}, &reply)
	return reply.Event, err
}

func (c *locatorRPCClient) Close() error {
	return c.client.Close()
}

type locatorRPCServer struct {
	impl Locator
}

func (s *locatorRPCServer) StartMonitoring(args *StartMonitoringArgs, reply *BoolReply) error {
	ok, err := s.impl.StartMonitoring(args.Region)
	reply.OK = ok
	return err
}

func (s *locatorRPCServer) StopMonitoring(identifier string, reply *BoolReply) error {
	ok, err := s.impl.StopMonitoring(identifier)
	reply.OK = ok
	return err
}

func (s *locatorRPCServer) StopAllMonitoring(_ *struct{}, reply *BoolReply) error {
	ok, err := s.impl.StopAllMonitoring()
	reply.OK = ok
	return err
}

func (s *locatorRPCServer) MonitoredRegions(_ *struct{}, reply *RegionsReply) error {
	ids, err := s.impl.MonitoredRegions()
	reply.Identifiers = ids
	return err
}

func (s *locatorRPCServer) RequestAlwaysAuthorization(_ *struct{}, reply *AuthorizationReply) error {
	status, err := s.impl.RequestAlwaysAuthorization()
	reply.Status = status
	return err
}

func (s *locatorRPCServer) HasAlwaysAuthorization(_ *struct{}, reply *BoolReply) error {
	ok, err := s.impl.HasAlwaysAuthorization()
	reply.OK = ok
	return err
}

func (s *locatorRPCServer) NextEvent(args *NextEventArgs, reply *NextEventReply) error {
	event, err := s.impl.NextEvent(args.TimeoutMillis)
	reply.Event = event
	return err
}
