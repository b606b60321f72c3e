package chain

// Context is the immutable chain context of a read: which network, and the
// capability to issue requests against it. Switching networks means
// building a new Context, never mutating one.
type Context struct {
	network Network
	caller  Caller
}

// NewContext binds a network to its RPC caller.
func NewContext(network Network, caller Caller) Context {
	return Context{network: network, caller: caller}
}

// Network returns the bound network.
func (c Context) Network() Network { return c.network }

// ChainID returns the bound chain id.
func (c Context) ChainID() int64 { return c.network.ChainID }

// Caller returns the request capability.
func (c Context) Caller() Caller { return c.caller }

// Valid reports whether c has both a network and a caller.
func (c Context) Valid() bool {
	return c.network.ChainID != 0 && c.caller != nil
}
