package script

import (
	"errors"
	"fmt"
	"math"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/interop"
)

var errNoPart = errors.New("no current part, call (part ...) first")

// sexpSolid carries a modelled solid between builtins.
type sexpSolid struct {
	solid interop.Solid
	kind  string
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(solid %s)", s.kind)
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

func toSolid(s zygo.Sexp) (interop.Solid, error) {
	if v, ok := s.(*sexpSolid); ok {
		return v.solid, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

type builtin func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// cookState accumulates the parts a script emits.
type cookState struct {
	parts   []*cook.Part
	cur     *cook.Part
	params  map[string]any
	modeler interop.Modeler
	cells   int
	// lastErr is the most recent builtin failure, which zygomys may reword.
	lastErr error
}

func (c *cookState) current() (*cook.Part, error) {
	if c.cur == nil {
		return nil, errNoPart
	}
	return c.cur, nil
}

// toSexp converts a parameter value for use inside a script.
func toSexp(v any) (zygo.Sexp, error) {
	switch x := v.(type) {
	case nil:
		return zygo.SexpNull, nil
	case int:
		return &zygo.SexpInt{Val: int64(x)}, nil
	case int64:
		return &zygo.SexpInt{Val: x}, nil
	case float64:
		return &zygo.SexpFloat{Val: x}, nil
	case float32:
		return &zygo.SexpFloat{Val: float64(x)}, nil
	case string:
		return &zygo.SexpStr{S: x}, nil
	case bool:
		if x {
			return &zygo.SexpInt{Val: 1}, nil
		}
		return &zygo.SexpInt{Val: 0}, nil
	}
	return zygo.SexpNull, fmt.Errorf("unsupported parameter type %T", v)
}

// registerBuiltins installs the cook builtins. Source must have been run
// through preprocessSource so keywords are recognisable.
func registerBuiltins(env *zygo.Zlisp, st *cookState) {
	add := func(name string, fn builtin) {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			res, err := fn(env, name, args)
			if err != nil {
				st.lastErr = err
			}
			return res, err
		})
	}

	// (param "count" 10)
	add("param", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 || len(args) > 2 {
			return zygo.SexpNull, fmt.Errorf("param requires a name and an optional default")
		}
		key, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("param: name: %w", err)
		}
		if v, ok := st.params[key]; ok {
			s, err := toSexp(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("param %q: %w", key, err)
			}
			return s, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return zygo.SexpNull, fmt.Errorf("param %q is not set and has no default", key)
	})

	// (part "scatter" :type :points)
	add("part", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("part requires a name argument")
		}
		partName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("part: name: %w", err)
		}
		typ := cook.PartPoints
		if v, ok := pa.kw["type"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("part: type: %w", err)
			}
			if typ, err = cook.ParsePartType(s); err != nil {
				return zygo.SexpNull, fmt.Errorf("part: %w", err)
			}
		}
		for _, p := range st.parts {
			if p.Info.Name == partName {
				return zygo.SexpNull, fmt.Errorf("part: duplicate part %q", partName)
			}
		}
		st.cur = cook.NewPart(partName, typ)
		st.parts = append(st.parts, st.cur)
		return &zygo.SexpInt{Val: int64(len(st.parts) - 1)}, nil
	})

	// (point 1 2 3)
	add("point", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p, err := st.current()
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point: %w", err)
		}
		x, y, z, err := toVec3(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point: %w", err)
		}
		return &zygo.SexpInt{Val: int64(p.AddPoint(geom.Vec3{X: x, Y: y, Z: z}))}, nil
	})

	// (prim 0 1 2)
	add("prim", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p, err := st.current()
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prim: %w", err)
		}
		flat, err := flatten(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prim: %w", err)
		}
		idx := make([]int, len(flat))
		for i, s := range flat {
			if idx[i], err = toInt(s); err != nil {
				return zygo.SexpNull, fmt.Errorf("prim: vertex %d: %w", i, err)
			}
		}
		return &zygo.SexpInt{Val: int64(p.AddPrim(idx...))}, nil
	})

	// (attr "Cd" 1 0 0 0 1 0 :owner :point :tuple 3 :info :color)
	add("attr", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return setAttr(st, "attr", cook.OwnerPoint, args)
	})

	// (detail "unreal_pcg_tags" "forest,rocks")
	add("detail", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return setAttr(st, "detail", cook.OwnerDetail, args)
	})

	// (instance 1 0 0 :scale 2 :point 0)
	add("instance", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p, err := st.current()
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("instance: %w", err)
		}
		pa := parseArgs(args)
		x, y, z, err := toVec3(pa.positional)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("instance: %w", err)
		}
		xf := geom.IdentityTransform
		xf.Location = geom.Vec3{X: x, Y: y, Z: z}
		if v, ok := pa.kw["scale"]; ok {
			s, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("instance: scale: %w", err)
			}
			xf.Scale = geom.Vec3{X: s, Y: s, Z: s}
		}
		if v, ok := pa.kw["yaw"]; ok {
			deg, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("instance: yaw: %w", err)
			}
			xf.Rotation = geom.QuatFromEuler(0, deg*math.Pi/180, 0)
		}
		if v, ok := pa.kw["point"]; ok {
			i, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("instance: point: %w", err)
			}
			p.Instances.PointIndices = append(p.Instances.PointIndices, i)
		}
		p.Instances.Transforms = append(p.Instances.Transforms, xf)
		return &zygo.SexpInt{Val: int64(len(p.Instances.Transforms) - 1)}, nil
	})

	// (box 1 2 3)
	add("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		x, y, z, err := toVec3(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		s, err := st.modeler.Box(geom.Vec3{X: x, Y: y, Z: z})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		return &sexpSolid{solid: s, kind: "box"}, nil
	})

	// (sphere 5)
	add("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("sphere requires a radius")
		}
		r, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
		s, err := st.modeler.Sphere(r)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: %w", err)
		}
		return &sexpSolid{solid: s, kind: "sphere"}, nil
	})

	// (cylinder 10 2)
	add("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("cylinder requires a height and a radius")
		}
		h, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: height: %w", err)
		}
		r, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: radius: %w", err)
		}
		s, err := st.modeler.Cylinder(h, r)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		return &sexpSolid{solid: s, kind: "cylinder"}, nil
	})

	// (union a b c)
	add("union", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 2 {
			return zygo.SexpNull, fmt.Errorf("union requires at least two solids")
		}
		acc, err := toSolid(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("union: %w", err)
		}
		for _, a := range args[1:] {
			s, err := toSolid(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("union: %w", err)
			}
			acc = st.modeler.Union(acc, s)
		}
		return &sexpSolid{solid: acc, kind: "union"}, nil
	})

	// (difference a b)
	add("difference", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("difference requires two solids")
		}
		a, err := toSolid(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("difference: %w", err)
		}
		b, err := toSolid(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("difference: %w", err)
		}
		return &sexpSolid{solid: st.modeler.Difference(a, b), kind: "difference"}, nil
	})

	// (translate s 0 0 5)
	add("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 2 {
			return zygo.SexpNull, fmt.Errorf("translate requires a solid and an offset")
		}
		s, err := toSolid(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		x, y, z, err := toVec3(args[1:])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		return &sexpSolid{solid: st.modeler.Translate(s, geom.Vec3{X: x, Y: y, Z: z}), kind: "translate"}, nil
	})

	// (polygonize s :cells 32) appends the surface to the current mesh part.
	add("polygonize", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		p, err := st.current()
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("polygonize: %w", err)
		}
		if p.Info.Type != cook.PartMesh {
			return zygo.SexpNull, fmt.Errorf("polygonize: part %q is %s, not mesh", p.Info.Name, p.Info.Type)
		}
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("polygonize requires a solid")
		}
		s, err := toSolid(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("polygonize: %w", err)
		}
		cells := st.cells
		if v, ok := pa.kw["cells"]; ok {
			if cells, err = toInt(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("polygonize: cells: %w", err)
			}
		}
		pts, topo, err := st.modeler.Polygonize(s, cells)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("polygonize: %w", err)
		}
		base := len(p.Positions)
		p.Positions = append(p.Positions, pts...)
		at := 0
		for _, n := range topo.Counts {
			prim := make([]int, n)
			for k := range prim {
				prim[k] = base + topo.Vertices[at+k]
			}
			p.AddPrim(prim...)
			at += n
		}
		return &zygo.SexpInt{Val: int64(len(topo.Counts))}, nil
	})
}

// setAttr implements attr and detail.
func setAttr(st *cookState, fn string, owner cook.Owner, args []zygo.Sexp) (zygo.Sexp, error) {
	p, err := st.current()
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
	}
	pa := parseArgs(args)
	if len(pa.positional) < 1 {
		return zygo.SexpNull, fmt.Errorf("%s requires a name", fn)
	}
	attrName, err := toString(pa.positional[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: name: %w", fn, err)
	}
	if v, ok := pa.kw["owner"]; ok {
		s, err := toKeywordString(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: owner: %w", fn, err)
		}
		if owner, err = cook.ParseOwner(s); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
	}
	tuple := 1
	if v, ok := pa.kw["tuple"]; ok {
		if tuple, err = toInt(v); err != nil || tuple < 1 {
			return zygo.SexpNull, fmt.Errorf("%s: tuple must be a positive integer", fn)
		}
	}
	info := cook.TypeInfoNone
	if v, ok := pa.kw["info"]; ok {
		s, err := toKeywordString(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: info: %w", fn, err)
		}
		if info, err = cook.ParseTypeInfo(s); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
	}
	storage := cook.StorageFloat
	if v, ok := pa.kw["storage"]; ok {
		s, err := toKeywordString(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: storage: %w", fn, err)
		}
		if storage, err = cook.ParseStorage(s); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
	}

	values, err := flatten(pa.positional[1:])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s %q: %w", fn, attrName, err)
	}
	if len(values)%tuple != 0 {
		return zygo.SexpNull, fmt.Errorf("%s %q: %d values do not fill tuples of %d", fn, attrName, len(values), tuple)
	}

	var a *cook.Attribute
	if len(values) > 0 {
		if _, isStr := values[0].(*zygo.SexpStr); isStr {
			storage = cook.StorageString
		}
	}
	switch {
	case storage == cook.StorageString:
		strs := make([]string, len(values))
		for i, v := range values {
			if strs[i], err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s %q: value %d: %w", fn, attrName, i, err)
			}
		}
		a = cook.StringAttribute(attrName, owner, strs...)
		a.TupleSize = tuple
		a.TypeInfo = info
	case storage.IsInteger():
		ints := make([]int64, len(values))
		for i, v := range values {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s %q: value %d: %w", fn, attrName, i, err)
			}
			ints[i] = int64(n)
		}
		a = cook.IntAttribute(attrName, owner, storage, tuple, ints...)
		a.TypeInfo = info
	case storage.IsFloat():
		floats := make([]float64, len(values))
		for i, v := range values {
			if floats[i], err = toFloat64(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s %q: value %d: %w", fn, attrName, i, err)
			}
		}
		a = cook.FloatAttribute(attrName, owner, tuple, info, floats...)
		a.Storage = storage
	default:
		// dictionary and blob payloads are carried as raw strings
		a = &cook.Attribute{AttributeDescriptor: cook.AttributeDescriptor{
			Name: attrName, Owner: owner, Storage: storage, TupleSize: 1, TypeInfo: info,
		}}
		for i, v := range values {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s %q: value %d: %w", fn, attrName, i, err)
			}
			a.Raw = append(a.Raw, []byte(s))
		}
	}
	p.SetAttribute(a)
	return &zygo.SexpStr{S: attrName}, nil
}
