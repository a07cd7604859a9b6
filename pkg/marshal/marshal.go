package marshal

import (
	"fmt"

	"github.com/aretw0/mqlua/pkg/domain"
	lua "github.com/yuin/gopher-lua"
)

// Mode selects where a transferred value ends up in the destination state.
type Mode int

const (
	// Nested returns the copied value to the caller, which places it inside
	// a structure it is building (or on the stack).
	Nested Mode = iota
	// Global stores the copied value as a named entry of the destination's
	// global namespace.
	Global
)

// Contexts reported by MarshalTypeError.
const (
	WhereArgument   = "argument"
	WhereTableKey   = "table key"
	WhereTableValue = "table value"
	WhereGlobal     = "global"
	WhereGlobalName = "global name"
)

// Limits bounds the traversal of a value tree. Zero disables a limit.
type Limits struct {
	MaxDepth  int
	MaxValues int
}

// DefaultLimits is deep enough for any realistic argument and still stops a
// cyclic table long before memory is exhausted.
var DefaultLimits = Limits{MaxDepth: 256, MaxValues: 1 << 20}

// Marshaler deep-copies value trees between interpreter states.
// It holds no per-call state and is safe for concurrent use.
type Marshaler struct {
	limits Limits
}

// Option configures the Marshaler.
type Option func(*Marshaler)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(m *Marshaler) {
		m.limits = l
	}
}

// New creates a Marshaler.
func New(opts ...Option) *Marshaler {
	m := &Marshaler{limits: DefaultLimits}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// budget counts visited values and tracks depth for one traversal.
type budget struct {
	limits Limits
	values int
}

func (b *budget) visit() error {
	b.values++
	if b.limits.MaxValues > 0 && b.values > b.limits.MaxValues {
		return &domain.RecursionLimitError{Limit: "values", Max: b.limits.MaxValues}
	}
	return nil
}

func (b *budget) descend(depth int) error {
	if b.limits.MaxDepth > 0 && depth > b.limits.MaxDepth {
		return &domain.RecursionLimitError{Limit: "depth", Max: b.limits.MaxDepth}
	}
	return nil
}

// FromLua captures a Lua value into an interpreter-independent Value.
// Functions, userdata, coroutines and channels are captured as Unsupported;
// the error is reported when the value is restored so the context is known.
func (m *Marshaler) FromLua(src lua.LValue) (domain.Value, error) {
	root, ok := src.(*lua.LTable)
	if !ok {
		return scalarFromLua(src), nil
	}

	type frame struct {
		src   *lua.LTable
		dst   *domain.Table
		depth int
	}

	b := budget{limits: m.limits}
	if err := b.visit(); err != nil {
		return domain.Nil(), err
	}
	out := domain.NewTable()
	stack := []frame{{src: root, dst: out, depth: 1}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for k, v := f.src.Next(lua.LNil); k != lua.LNil; k, v = f.src.Next(k) {
			if err := b.visit(); err != nil {
				return domain.Nil(), err
			}
			key, _ := domain.KeyOf(keyFromLua(k))

			var val domain.Value
			if t, ok := v.(*lua.LTable); ok {
				if err := b.descend(f.depth + 1); err != nil {
					return domain.Nil(), err
				}
				child := domain.NewTable()
				val = domain.TableValue(child)
				stack = append(stack, frame{src: t, dst: child, depth: f.depth + 1})
			} else {
				val = scalarFromLua(v)
			}
			f.dst.Set(key, val)
		}
	}
	return domain.TableValue(out), nil
}

func keyFromLua(k lua.LValue) domain.Value {
	if _, ok := k.(*lua.LTable); ok {
		return domain.Unsupported(lua.LTTable.String())
	}
	return scalarFromLua(k)
}

func scalarFromLua(v lua.LValue) domain.Value {
	switch x := v.(type) {
	case *lua.LNilType:
		return domain.Nil()
	case lua.LBool:
		return domain.Bool(bool(x))
	case lua.LNumber:
		return domain.Number(float64(x))
	case lua.LString:
		return domain.String(string(x))
	default:
		return domain.Unsupported(v.Type().String())
	}
}

// ToLua rebuilds v inside L. where names the context reported when v (not a
// nested entry) has an unsupported kind.
func (m *Marshaler) ToLua(L *lua.LState, v domain.Value, where string) (lua.LValue, error) {
	root, ok := v.AsTable()
	if !ok {
		return scalarToLua(v, where)
	}

	type frame struct {
		src   *domain.Table
		dst   *lua.LTable
		depth int
	}

	b := budget{limits: m.limits}
	if err := b.visit(); err != nil {
		return lua.LNil, err
	}
	out := L.NewTable()
	stack := []frame{{src: root, dst: out, depth: 1}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var err error
		f.src.Range(func(k domain.Key, val domain.Value) bool {
			if err = b.visit(); err != nil {
				return false
			}
			var lk, lv lua.LValue
			if lk, err = scalarToLua(k.Value(), WhereTableKey); err != nil {
				return false
			}
			if t, ok := val.AsTable(); ok {
				if err = b.descend(f.depth + 1); err != nil {
					return false
				}
				child := L.NewTable()
				stack = append(stack, frame{src: t, dst: child, depth: f.depth + 1})
				lv = child
			} else if lv, err = scalarToLua(val, WhereTableValue); err != nil {
				return false
			}
			f.dst.RawSet(lk, lv)
			return true
		})
		if err != nil {
			return lua.LNil, err
		}
	}
	return out, nil
}

func scalarToLua(v domain.Value, where string) (lua.LValue, error) {
	switch v.Kind() {
	case domain.KindNil:
		return lua.LNil, nil
	case domain.KindBool:
		b, _ := v.AsBool()
		return lua.LBool(b), nil
	case domain.KindInt:
		i, _ := v.AsInt()
		return lua.LNumber(i), nil
	case domain.KindFloat:
		f, _ := v.AsFloat()
		return lua.LNumber(f), nil
	case domain.KindString:
		s, _ := v.AsString()
		return lua.LString(s), nil
	case domain.KindUnsupported:
		return lua.LNil, &domain.MarshalTypeError{Kind: v.ForeignKind(), Where: where}
	}
	return lua.LNil, &domain.MarshalTypeError{Kind: v.Kind().String(), Where: where}
}

// Transfer restores v into L. In Global mode the result is also stored as
// the global name.
func (m *Marshaler) Transfer(L *lua.LState, v domain.Value, mode Mode, name string) (lua.LValue, error) {
	where := WhereArgument
	if mode == Global {
		where = WhereGlobal
	}
	lv, err := m.ToLua(L, v, where)
	if err != nil {
		return lua.LNil, err
	}
	if mode == Global {
		L.SetGlobal(name, lv)
	}
	return lv, nil
}

// Copy deep-copies a value of one state into another. The source state is
// only read.
func (m *Marshaler) Copy(src lua.LValue, dst *lua.LState, mode Mode, name string) (lua.LValue, error) {
	v, err := m.FromLua(src)
	if err != nil {
		return lua.LNil, err
	}
	return m.Transfer(dst, v, mode, name)
}

// PushArgs restores args in order onto the stack of L. Nothing is pushed
// unless every argument converts.
func (m *Marshaler) PushArgs(L *lua.LState, args []domain.Value) error {
	vals := make([]lua.LValue, len(args))
	for i, a := range args {
		lv, err := m.ToLua(L, a, WhereArgument)
		if err != nil {
			return err
		}
		vals[i] = lv
	}
	for _, lv := range vals {
		L.Push(lv)
	}
	return nil
}

// SetGlobals installs every entry of t as a global of L. Integer keys are
// named by their decimal form.
func (m *Marshaler) SetGlobals(L *lua.LState, t *domain.Table) error {
	var err error
	t.Range(func(k domain.Key, v domain.Value) bool {
		var name string
		switch k.Kind() {
		case domain.KindString:
			name, _ = k.Value().AsString()
		case domain.KindInt:
			i, _ := k.Value().AsInt()
			name = fmt.Sprintf("%d", i)
		default:
			err = &domain.MarshalTypeError{Kind: k.Kind().String(), Where: WhereGlobalName}
			return false
		}
		_, err = m.Transfer(L, v, Global, name)
		return err == nil
	})
	return err
}
