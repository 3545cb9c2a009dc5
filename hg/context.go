package hg

import (
	"github.com/mercury-hpc/mercury-go/na"
)

// Context pairs an na.Context with the owning hg Class, the unit server
// callbacks dispatch against when Post re-posts unexpected receives (§4.5).
type Context struct {
	class *Class
	na    *na.Context

	handleCreateHook HandleCreateHook
}

// NewContext derives a Context from cls, wrapping a freshly created
// na.Context with the given options.
func (c *Class) NewContext(opts na.ContextOptions) (*Context, na.Status) {
	naCtx, st := c.na.NewContext(opts)
	if !st.OK() {
		return nil, st
	}
	return &Context{class: c, na: naCtx}, na.Success
}

// NAContext exposes the underlying na.Context, e.g. to call Progress or
// Trigger directly.
func (c *Context) NAContext() *na.Context { return c.na }

// Class returns the owning hg Class.
func (c *Context) Class() *Class { return c.class }

// Destroy tears down the underlying na.Context.
func (c *Context) Destroy() na.Status { return c.na.Destroy() }
