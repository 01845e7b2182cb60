package syncmap

// ExpungeHandlerFunc is called once per expunged record, before the record
// array is compacted. extData is the handler's extension slice of the
// record at its pre-compaction location; userCtx is the opaque value given
// at registration. Handlers run synchronously inside the sync pass and
// must not re-enter the applier.
type ExpungeHandlerFunc func(c *Context, seq uint32, extData []byte, userCtx any)

// ExtCallbacks receives extension life-cycle notifications while a log is
// being replayed. Implementations must not re-enter the applier.
type ExtCallbacks interface {
	// ExtIntro is called after an extension introduction has been applied.
	ExtIntro(name string, extIdx uint32)

	// ExtReset is called after an extension's data has been cleared.
	ExtReset(name string, extIdx uint32)

	// ExtHdrUpdate is called after an extension header region changed.
	ExtHdrUpdate(name string, extIdx uint32)

	// ExtRecUpdate is called after a record's extension slice changed.
	ExtRecUpdate(name string, extIdx, seq uint32)
}

type registeredExpungeHandler struct {
	extName string
	fn      ExpungeHandlerFunc
	userCtx any
}

// resolvedExpungeHandler is a registered handler bound to the working
// map's extension layout at sync time.
type resolvedExpungeHandler struct {
	extIdx  uint32
	fn      ExpungeHandlerFunc
	userCtx any
}

// Registry holds the externally registered capability sets the applier
// calls out to: expunge handlers keyed by extension name, and extension
// life-cycle callbacks. A nil Registry is valid and means no handlers.
type Registry struct {
	expunge []registeredExpungeHandler
	ext     []ExtCallbacks
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterExpungeHandler registers fn to be called for every expunged
// record that carries data for the named extension.
func (r *Registry) RegisterExpungeHandler(extName string, fn ExpungeHandlerFunc, userCtx any) {
	r.expunge = append(r.expunge, registeredExpungeHandler{extName: extName, fn: fn, userCtx: userCtx})
}

// RegisterExtCallbacks adds extension life-cycle callbacks.
func (r *Registry) RegisterExtCallbacks(cb ExtCallbacks) {
	r.ext = append(r.ext, cb)
}

// initExpungeHandlers lazily resolves registered expunge handlers against
// the working map's extension table. Handlers whose extension isn't in the
// map are dropped for this pass. Only FILE syncs run expunge handlers.
func (c *Context) initExpungeHandlers() bool {
	if c.typ != TypeFile {
		return false
	}
	if !c.expungeHandlersSet {
		c.expungeHandlersSet = true
		if c.reg != nil {
			for _, h := range c.reg.expunge {
				idx, ok := c.cur.FindExtension(h.extName)
				if !ok {
					continue
				}
				c.expungeHandlers = append(c.expungeHandlers, resolvedExpungeHandler{
					extIdx:  idx,
					fn:      h.fn,
					userCtx: h.userCtx,
				})
			}
		}
	}
	return len(c.expungeHandlers) > 0
}

func (c *Context) notifyExtIntro(name string, idx uint32) {
	if c.reg == nil {
		return
	}
	for _, cb := range c.reg.ext {
		cb.ExtIntro(name, idx)
	}
}

func (c *Context) notifyExtReset(name string, idx uint32) {
	if c.reg == nil {
		return
	}
	for _, cb := range c.reg.ext {
		cb.ExtReset(name, idx)
	}
}

func (c *Context) notifyExtHdrUpdate(name string, idx uint32) {
	if c.reg == nil {
		return
	}
	for _, cb := range c.reg.ext {
		cb.ExtHdrUpdate(name, idx)
	}
}

func (c *Context) notifyExtRecUpdate(name string, idx, seq uint32) {
	if c.reg == nil {
		return
	}
	for _, cb := range c.reg.ext {
		cb.ExtRecUpdate(name, idx, seq)
	}
}
