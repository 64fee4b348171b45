// Package shapes defines Shape: the DType and dimensions of a tensor.
//
// Shapes describe the tensors flowing through a computation graph; the
// auto-sharding pass uses them to derive per-shard sizes and communication
// byte counts. The element type is the DType enumeration from
// github.com/gomlx/gopjrt/dtypes.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Shape represents the shape of a tensor: its DType and its dimensions.
// A rank-0 shape (no dimensions) is a scalar.
//
// Use Make to create a new Shape.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape with the given dtype and dimensions.
//
// Example: shapes.Make(dtypes.Float32, 2, 3) represents a 2x3 matrix of
// float32 values.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	return Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
}

// Ok returns whether this is a valid Shape: a zero-initialized Shape{} is
// invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar: rank 0.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Size returns the number of elements of DType in a tensor of this shape:
// the product of all dimensions.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

// Memory returns the number of bytes needed to store a tensor of this shape.
func (s Shape) Memory() int64 {
	return int64(s.DType.Memory()) * int64(s.Size())
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// Equal compares dtype and dimensions.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// Validate returns an error if the shape has an invalid dtype or any
// dimension <= 0.
func (s Shape) Validate() error {
	if !s.Ok() {
		return errors.Errorf("shape %s has an invalid dtype", s)
	}
	for axis, dim := range s.Dimensions {
		if dim <= 0 {
			return errors.Errorf("shape %s has invalid dimension %d for axis %d", s, dim, axis)
		}
	}
	return nil
}

// String implements fmt.Stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}
