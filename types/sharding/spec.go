package sharding

import (
	"slices"
	"strings"

	"github.com/gomlx/autosharding/internal/utils"
	"github.com/gomlx/autosharding/types/shapes"
	"github.com/pkg/errors"
)

// Spec defines how a logical tensor is partitioned across a DeviceMesh.
//
// The definition is per axis of the logical tensor -- and not per axis of the
// mesh, a common confusion. Each tensor dimension is tiled across at most one
// mesh axis; dimensions assigned NotSharded stay whole on every device. A
// Spec whose dimensions are all NotSharded means the tensor is fully
// replicated: every device holds a complete copy.
//
// A nil *Spec means "unspecified": no decision has been made yet. The
// auto-sharding pass guarantees that after it runs no tensor is left
// unspecified.
//
// Example:
//
//	mesh, _ := sharding.NewDeviceMesh("mesh", []int{2, 2}, []string{"x", "y"})
//
//	// [batch, features] with batch tiled across the "x" axis:
//	spec := sharding.NewSpec(mesh, 2).SetDimAxis(0, 0)
//
//	// Fully replicated rank-2 tensor:
//	replicated := sharding.Replicated(mesh, 2)
type Spec struct {
	Mesh *DeviceMesh

	// DimAxes assigns to each tensor dimension the index of the mesh axis it
	// is tiled across, or NotSharded. len(DimAxes) must equal the tensor
	// rank. A mesh axis may not be used by more than one dimension.
	DimAxes []int
}

// NotSharded marks a tensor dimension that is not tiled across any mesh axis.
const NotSharded = -1

// NewSpec creates a Spec for a tensor of the given rank with no dimension
// sharded (i.e., fully replicated). Use SetDimAxis to tile dimensions.
func NewSpec(mesh *DeviceMesh, rank int) *Spec {
	dimAxes := make([]int, rank)
	for i := range dimAxes {
		dimAxes[i] = NotSharded
	}
	return &Spec{Mesh: mesh, DimAxes: dimAxes}
}

// Replicated returns the Spec of a fully replicated tensor of the given rank.
// It is an alias for NewSpec.
func Replicated(mesh *DeviceMesh, rank int) *Spec {
	return NewSpec(mesh, rank)
}

// SetDimAxis tiles tensor dimension dim across the mesh axis with the given
// index. It returns the Spec itself, so calls can be chained.
func (s *Spec) SetDimAxis(dim, meshAxis int) *Spec {
	s.DimAxes[dim] = meshAxis
	return s
}

// SetDimAxisName is like SetDimAxis, taking the mesh axis by name.
func (s *Spec) SetDimAxisName(dim int, axisName string) (*Spec, error) {
	axis, err := s.Mesh.AxisIndex(axisName)
	if err != nil {
		return nil, err
	}
	return s.SetDimAxis(dim, axis), nil
}

// Rank returns the number of tensor dimensions this Spec describes.
func (s *Spec) Rank() int {
	return len(s.DimAxes)
}

// AxisFor returns the mesh axis tensor dimension dim is tiled across, or
// NotSharded.
func (s *Spec) AxisFor(dim int) int {
	return s.DimAxes[dim]
}

// IsReplicated returns true if no dimension is sharded, i.e., every device
// holds a full copy of the tensor.
func (s *Spec) IsReplicated() bool {
	for _, axis := range s.DimAxes {
		if axis != NotSharded {
			return false
		}
	}
	return true
}

// ShardCount returns the number of shards the tensor is split into: the
// product of the sizes of the mesh axes in use. 1 for a replicated tensor.
func (s *Spec) ShardCount() int {
	count := 1
	for _, axis := range s.DimAxes {
		if axis != NotSharded {
			count *= s.Mesh.AxisSize(axis)
		}
	}
	return count
}

// ShardShape returns the shape of the tensor slice each device holds locally
// under this Spec.
func (s *Spec) ShardShape(shape shapes.Shape) shapes.Shape {
	local := shape.Clone()
	for dim, axis := range s.DimAxes {
		if axis != NotSharded {
			local.Dimensions[dim] /= s.Mesh.AxisSize(axis)
		}
	}
	return local
}

// ShardMemory returns the number of bytes each device holds locally for a
// tensor of the given shape under this Spec.
func (s *Spec) ShardMemory(shape shapes.Shape) int64 {
	return s.ShardShape(shape).Memory()
}

// Clone returns a deep copy of the Spec. Clone of a nil Spec is nil.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	return &Spec{Mesh: s.Mesh, DimAxes: slices.Clone(s.DimAxes)}
}

// Equal returns whether the two specs describe the same placement on the
// same mesh. Nil specs (unspecified) are only equal to nil.
func (s *Spec) Equal(o *Spec) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Mesh == o.Mesh && slices.Equal(s.DimAxes, o.DimAxes)
}

// Validate checks that the Spec is consistent with a tensor of the given
// shape: ranks match, every mesh axis in use exists, divides its dimension
// evenly, and is used at most once.
func (s *Spec) Validate(shape shapes.Shape) error {
	if s.Mesh == nil {
		return errors.New("Spec has no mesh")
	}
	if s.Rank() != shape.Rank() {
		return errors.Errorf("Spec rank %d does not match tensor rank %d (shape %s)",
			s.Rank(), shape.Rank(), shape)
	}
	used := utils.MakeSet[int](len(s.DimAxes))
	for dim, axis := range s.DimAxes {
		if axis == NotSharded {
			continue
		}
		if axis < 0 || axis >= s.Mesh.Rank() {
			return errors.Errorf("Spec dimension %d refers to mesh axis %d, mesh %s has only %d axes",
				dim, axis, s.Mesh, s.Mesh.Rank())
		}
		if used.Has(axis) {
			return errors.Errorf("mesh axis %q is used by more than one dimension in Spec %s",
				s.Mesh.AxesNames()[axis], s)
		}
		used.Insert(axis)
		if shape.Dimensions[dim]%s.Mesh.AxisSize(axis) != 0 {
			return errors.Errorf("dimension %d of shape %s does not divide evenly across mesh axis %q (size %d)",
				dim, shape, s.Mesh.AxesNames()[axis], s.Mesh.AxisSize(axis))
		}
	}
	return nil
}

// String implements fmt.Stringer. E.g.: "{x, -, y}" for a rank-3 tensor with
// dimension 0 on mesh axis "x", dimension 1 unsharded and dimension 2 on
// mesh axis "y". A fully replicated spec prints as "replicated".
func (s *Spec) String() string {
	if s == nil {
		return "unspecified"
	}
	if s.IsReplicated() {
		return "replicated"
	}
	names := s.Mesh.AxesNames()
	parts := make([]string, len(s.DimAxes))
	for dim, axis := range s.DimAxes {
		if axis == NotSharded {
			parts[dim] = "-"
		} else if axis >= 0 && axis < len(names) {
			parts[dim] = names[axis]
		} else {
			parts[dim] = "?"
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
