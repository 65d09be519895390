package specialize

import (
	"fmt"

	"github.com/chazu/pcgbridge/pkg/attrib"
	"github.com/chazu/pcgbridge/pkg/cook"
	"github.com/chazu/pcgbridge/pkg/extract"
	"github.com/chazu/pcgbridge/pkg/geom"
	"github.com/chazu/pcgbridge/pkg/pcg"
)

// InstanceEntry is one placed instance.
type InstanceEntry struct {
	PointIndex int
	Transform  geom.Transform
}

// InstanceBatch groups instances of one source asset.
type InstanceBatch struct {
	Source  string
	Entries []InstanceEntry
}

// InstanceOutput is the instancing payload of a part. Batches are ordered
// by first appearance.
type InstanceOutput struct {
	Batches []InstanceBatch
}

// Count returns the total number of instances.
func (o *InstanceOutput) Count() int {
	n := 0
	for _, b := range o.Batches {
		n += len(b.Entries)
	}
	return n
}

// Instances batches a part's instances by source. Transforms come from the
// base set, which already carries the converted instance transforms. When
// the part has no explicit instance list, every point is an instance.
func Instances(p *extract.PartBuffers, base *pcg.PointData) (*InstanceOutput, error) {
	var indices []int
	switch inst := p.Instances; {
	case len(inst.Transforms) == 0:
		indices = make([]int, base.Len())
		for i := range indices {
			indices[i] = i
		}
	case inst.PointIndices == nil:
		indices = make([]int, len(inst.Transforms))
		for k := range indices {
			indices[k] = k
		}
	default:
		if len(inst.PointIndices) != len(inst.Transforms) {
			return nil, fmt.Errorf("specialize: part %q: %d instance transforms for %d point indices: %w",
				p.Info.Name, len(inst.Transforms), len(inst.PointIndices), extract.ErrIncompleteCookData)
		}
		indices = inst.PointIndices
	}

	source := p.PointAttribute(extract.AttrInstance)
	if source == nil {
		source = p.Attribute(cook.OwnerPrim, extract.AttrInstance)
	}

	out := &InstanceOutput{}
	batchOf := make(map[string]int)
	for k, idx := range indices {
		if idx < 0 || idx >= base.Len() {
			return nil, &IndexError{What: fmt.Sprintf("part %q instance %d", p.Info.Name, k), Index: idx, Len: base.Len()}
		}
		src := sourceOf(source, idx)
		b, ok := batchOf[src]
		if !ok {
			b = len(out.Batches)
			batchOf[src] = b
			out.Batches = append(out.Batches, InstanceBatch{Source: src})
		}
		out.Batches[b].Entries = append(out.Batches[b].Entries, InstanceEntry{
			PointIndex: idx,
			Transform:  base.Point(idx).Transform,
		})
	}
	return out, nil
}

func sourceOf(a *cook.Attribute, point int) string {
	if a == nil {
		return ""
	}
	i := point
	if a.Owner == cook.OwnerDetail || (a.Owner == cook.OwnerPrim && a.Len() == 1) {
		i = 0
	}
	s, _ := a.StringAt(i, 0)
	return attrib.CleanAssetPath(s)
}
