package plugin

import (
	"testing"

	"firestige.xyz/pktkit/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type key struct {
	kind core.Kind
	code core.Code
}

// mapRegistry is a minimal Registry for exercising the package-level API.
type mapRegistry struct {
	m      map[key]Dissector
	sealed bool
}

func newMapRegistry() *mapRegistry {
	return &mapRegistry{m: make(map[key]Dissector)}
}

func (r *mapRegistry) Register(kind core.Kind, code core.Code, d Dissector) error {
	if r.sealed {
		return core.ErrRegistrySealed
	}
	r.m[key{kind, code}] = d
	return nil
}

func (r *mapRegistry) Lookup(kind core.Kind, code core.Code) (Dissector, bool) {
	d, ok := r.m[key{kind, code}]
	return d, ok
}

func (r *mapRegistry) Dissector(name string) (Dissector, bool) {
	for _, d := range r.m {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

func (r *mapRegistry) Entries() []Descriptor {
	out := make([]Descriptor, 0, len(r.m))
	for k, d := range r.m {
		out = append(out, Descriptor{Kind: k.kind, Code: k.code, Dissector: d})
	}
	return out
}

func (r *mapRegistry) Seal()        { r.sealed = true }
func (r *mapRegistry) Sealed() bool { return r.sealed }
func (r *mapRegistry) Clone() Registry {
	c := newMapRegistry()
	for k, d := range r.m {
		c.m[k] = d
	}
	return c
}

func fixedDissector(name string, n int) Dissector {
	return NewDissector(name, core.StratumApplication, func(cur *core.Cursor, ctx *Context) (Result, error) {
		if err := cur.Skip(n); err != nil {
			return Result{}, err
		}
		return Result{Length: n, Fields: core.Fields{"depth": ctx.Depth}}, nil
	})
}

func TestNewDissector(t *testing.T) {
	d := fixedDissector("demo", 2)
	assert.Equal(t, "demo", d.Name())
	assert.Equal(t, core.StratumApplication, d.Stratum())

	cur := core.NewCursor([]byte{1, 2, 3})
	res, err := d.Dissect(&cur, &Context{Depth: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Length)
	assert.Equal(t, 3, res.Fields["depth"])

	cur = core.NewCursor([]byte{1})
	_, err = d.Dissect(&cur, &Context{})
	assert.ErrorIs(t, err, core.ErrTruncated)
}

func TestAlias(t *testing.T) {
	d := Alias("mydns", fixedDissector("dns", 1))
	assert.Equal(t, "mydns", d.Name())

	cur := core.NewCursor([]byte{0})
	res, err := d.Dissect(&cur, &Context{})
	require.NoError(t, err)
	assert.Equal(t, "mydns", res.Protocol)
}

func TestContext_Has(t *testing.T) {
	reg := newMapRegistry()
	require.NoError(t, reg.Register(core.KindUDPPort, 53, fixedDissector("dns", 0)))

	ctx := &Context{Registry: reg}
	assert.True(t, ctx.Has(core.KindUDPPort, 53))
	assert.False(t, ctx.Has(core.KindTCPPort, 53))

	var nilCtx *Context
	assert.False(t, nilCtx.Has(core.KindUDPPort, 53))
	assert.False(t, (&Context{}).Has(core.KindUDPPort, 53))
}

func TestGlobalRegistry(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetRegistry(prev) })

	SetRegistry(nil)
	assert.Error(t, Register(core.KindLink, 1, fixedDissector("eth", 14)))
	_, ok := Lookup(core.KindLink, 1)
	assert.False(t, ok)
	assert.Nil(t, Entries())

	reg := newMapRegistry()
	SetRegistry(reg)
	require.NoError(t, Register(core.KindLink, 1, fixedDissector("eth", 14)))

	d, ok := Lookup(core.KindLink, 1)
	require.True(t, ok)
	assert.Equal(t, "eth", d.Name())
	assert.Len(t, Entries(), 1)
	assert.Equal(t, "link/1 → eth", Entries()[0].String())

	reg.Seal()
	assert.ErrorIs(t, Register(core.KindLink, 1, fixedDissector("eth2", 14)), core.ErrRegistrySealed)
}

func TestNextOf(t *testing.T) {
	n := NextOf(core.KindEtherType, 0x0800)
	assert.Equal(t, core.Next{Kind: core.KindEtherType, Code: 0x0800}, *n)
}
