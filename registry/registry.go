// Package registry implements the per-client proxy/resource map from
// spec.md §4.10: every object a client has bound to is recorded under
// its client-local id together with the interface it was bound as and
// the permission bits the client holds on it. A graph-wide Registry
// tracks one Client map per connected client and lets global objects
// (nodes, ports, the graph itself) be enumerated and bound to.
package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/rtgraph/rtgraph/internal/idmap"
	"github.com/rtgraph/rtgraph/typemap"
)

// Perm is a permission bitmask, spec.md §4.10, mirroring
// original_source's PW_PERM_R/W/X octal bits.
type Perm uint32

const (
	PermNone Perm = 0
	PermR    Perm = 0400
	PermW    Perm = 0200
	PermX    Perm = 0100
	PermRWX  Perm = PermR | PermW | PermX
)

func (p Perm) CanRead() bool    { return p&PermR == PermR }
func (p Perm) CanWrite() bool   { return p&PermW == PermW }
func (p Perm) CanExecute() bool { return p&PermX == PermX }

func (p Perm) String() string {
	b := [3]byte{'-', '-', '-'}
	if p.CanRead() {
		b[0] = 'r'
	}
	if p.CanWrite() {
		b[1] = 'w'
	}
	if p.CanExecute() {
		b[2] = 'x'
	}
	return string(b[:])
}

// Global is a graph-wide object that clients may bind to: a node, a
// port, a factory, or the graph core itself. Its ID is stable for the
// object's lifetime in the registry, independent of any client's
// resource id for it.
type Global struct {
	ID        uint32
	Interface typemap.ID
	Version   uint32
	Props     map[string]string
	Object    any // the graph.Node/graph.Port/etc this global refers to
}

// Resource is one client's binding to a Global: its own local id for
// the object, the interface/version it bound as, and the permission
// bits it was granted (spec.md §4.10).
type Resource struct {
	ID        uint32 // client-local id
	GlobalID  uint32
	Interface typemap.ID
	Version   uint32
	Perms     Perm
}

// Client is one connected client's view of the registry: its bound
// resources, keyed by client-local id, plus a default permission mask
// applied to globals it has not been granted explicit permissions on.
type Client struct {
	log *zerolog.Logger

	mu        sync.Mutex
	resources *idmap.Map[*Resource]
	perGlobal map[uint32]Perm // explicit grants, keyed by Global.ID
	defaults  Perm
}

// NewClient returns an empty Client with the given default permission
// mask (spec.md §4.10's fallback when no explicit grant exists).
func NewClient(defaults Perm, log *zerolog.Logger) *Client {
	return &Client{
		log:       log,
		resources: idmap.New[*Resource](),
		perGlobal: make(map[uint32]Perm),
		defaults:  defaults,
	}
}

// Grant records an explicit permission mask for this client on the
// given global, overriding the client's default mask.
func (c *Client) Grant(globalID uint32, perms Perm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perGlobal[globalID] = perms
}

// PermsFor returns the effective permission mask this client holds on
// globalID: its explicit grant if any, else the client's default.
func (c *Client) PermsFor(globalID uint32) Perm {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.perGlobal[globalID]; ok {
		return p
	}
	return c.defaults
}

// Bind creates a Resource for global under a fresh client-local id,
// recording the interface/version the client bound as. It fails with
// ErrPermissionDenied if the client lacks PermX on the global.
func (c *Client) Bind(global *Global, version uint32) (*Resource, error) {
	perms := c.PermsFor(global.ID)
	if !perms.CanExecute() {
		return nil, ErrPermissionDenied
	}

	r := &Resource{GlobalID: global.ID, Interface: global.Interface, Version: version, Perms: perms}
	c.mu.Lock()
	r.ID = c.resources.Insert(r)
	c.mu.Unlock()

	if c.log != nil {
		c.log.Debug().Uint32("resource", r.ID).Uint32("global", global.ID).Msg("client bound resource")
	}
	return r, nil
}

// Unbind releases the client's resource id, mirroring the remote
// object's destruction (spec.md §4.10).
func (c *Client) Unbind(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources.Remove(id)
}

// Resource looks up a bound resource by client-local id.
func (c *Client) Resource(id uint32) (*Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resources.Lookup(id)
}

// Resources returns every resource currently bound by this client.
func (c *Client) Resources() []*Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Resource, 0, c.resources.Len())
	c.resources.Each(func(_ uint32, r *Resource) { out = append(out, r) })
	return out
}

// Registry tracks every global object advertised to clients and every
// connected client's bindings to them, spec.md §4.10.
type Registry struct {
	log *zerolog.Logger

	mu      sync.Mutex
	globals *idmap.Map[*Global]
	clients *idmap.Map[*Client]
}

// New returns an empty Registry.
func New(log *zerolog.Logger) *Registry {
	return &Registry{
		log:     log,
		globals: idmap.New[*Global](),
		clients: idmap.New[*Client](),
	}
}

// AddGlobal advertises obj under iface/version, returning the fresh
// Global. Clients may subsequently Bind to it by its ID.
func (r *Registry) AddGlobal(iface typemap.ID, version uint32, props map[string]string, obj any) *Global {
	g := &Global{Interface: iface, Version: version, Props: props, Object: obj}
	r.mu.Lock()
	g.ID = r.globals.Insert(g)
	r.mu.Unlock()
	if r.log != nil {
		r.log.Debug().Uint32("global", g.ID).Msg("global added")
	}
	return g
}

// RemoveGlobal withdraws a global from future binds; resources already
// bound to it are left untouched, mirroring PipeWire's "global gone but
// proxy lives until the client destroys it" behaviour.
func (r *Registry) RemoveGlobal(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globals.Remove(id)
}

// Global looks up a global by id.
func (r *Registry) Global(id uint32) (*Global, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globals.Lookup(id)
}

// Globals returns every currently advertised global.
func (r *Registry) Globals() []*Global {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Global, 0, r.globals.Len())
	r.globals.Each(func(_ uint32, g *Global) { out = append(out, g) })
	return out
}

// AddClient registers a new client with the given default permission
// mask and returns it along with its registry-assigned id.
func (r *Registry) AddClient(defaults Perm) (uint32, *Client) {
	c := NewClient(defaults, r.log)
	r.mu.Lock()
	id := r.clients.Insert(c)
	r.mu.Unlock()
	return id, c
}

// RemoveClient drops a client and every resource it had bound.
func (r *Registry) RemoveClient(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients.Remove(id)
}

// Client looks up a connected client by registry id.
func (r *Registry) Client(id uint32) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients.Lookup(id)
}
