// Package sharding provides the types that describe how tensors are
// partitioned across a logical grid of devices: DeviceMesh, the grid itself,
// and Spec, the per-tensor assignment of tensor dimensions to mesh axes.
package sharding

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/autosharding/internal/utils"
	"github.com/pkg/errors"
)

// DeviceMesh defines the logical topology of a set of devices.
//
// It is read-only once created: the auto-sharding pass only consumes it.
type DeviceMesh struct {
	name string

	// axesNames are the names of the mesh axes.
	axesNames []string

	// axesSizes defines the number of devices along each mesh axis.
	axesSizes []int

	// nameToAxis maps axis names to their index.
	nameToAxis map[string]int

	// numDevices is the total number of devices in the mesh.
	numDevices int
}

// NewDeviceMesh creates a new logical topology of a set of devices.
//
//   - name: the name of the mesh, it must be a valid identifier (see
//     utils.NormalizeIdentifier).
//   - axesSizes: the number of devices along each mesh axis, one value per
//     axis, all >= 1.
//   - axesNames: the names of the mesh axes, one value per axis, also valid
//     identifiers.
func NewDeviceMesh(name string, axesSizes []int, axesNames []string) (*DeviceMesh, error) {
	if len(axesSizes) != len(axesNames) {
		return nil, errors.Errorf("axesSizes and axesNames must have the same length, got %d and %d",
			len(axesSizes), len(axesNames))
	}
	if len(axesSizes) == 0 {
		return nil, errors.New("DeviceMesh axesSizes cannot be empty")
	}
	if name != utils.NormalizeIdentifier(name) {
		return nil, errors.Errorf("DeviceMesh name %q is not a valid identifier, suggestion %q",
			name, utils.NormalizeIdentifier(name))
	}

	axesNames = slices.Clone(axesNames)
	numDevices := 1
	nameToAxis := make(map[string]int, len(axesSizes))
	for i, axisName := range axesNames {
		if axisName == "" {
			return nil, errors.Errorf("DeviceMesh axis name at index %d cannot be empty", i)
		}
		if axisName != utils.NormalizeIdentifier(axisName) {
			return nil, errors.Errorf("DeviceMesh axis name %q at index %d is not a valid identifier, suggestion %q",
				axisName, i, utils.NormalizeIdentifier(axisName))
		}
		if _, found := nameToAxis[axisName]; found {
			return nil, errors.Errorf("DeviceMesh axis name %q is duplicated", axisName)
		}
		if axesSizes[i] <= 0 {
			return nil, errors.Errorf("DeviceMesh axis %q must have size >= 1, got %d", axisName, axesSizes[i])
		}
		nameToAxis[axisName] = i
		numDevices *= axesSizes[i]
	}

	return &DeviceMesh{
		name:       name,
		axesNames:  axesNames,
		axesSizes:  slices.Clone(axesSizes),
		nameToAxis: nameToAxis,
		numDevices: numDevices,
	}, nil
}

// Name of the mesh.
func (m *DeviceMesh) Name() string {
	return m.name
}

// NumDevices returns the total number of devices in the mesh: the product of
// the axes sizes.
func (m *DeviceMesh) NumDevices() int {
	return m.numDevices
}

// Rank returns the number of axes in the mesh.
func (m *DeviceMesh) Rank() int {
	return len(m.axesSizes)
}

// AxesNames returns a copy of the mesh's axis names.
func (m *DeviceMesh) AxesNames() []string {
	return slices.Clone(m.axesNames)
}

// AxesSizes returns a copy of the mesh's axes sizes.
func (m *DeviceMesh) AxesSizes() []int {
	return slices.Clone(m.axesSizes)
}

// AxisSize returns the number of devices along the given mesh axis index.
// It panics for an out-of-range axis, like a slice indexing.
func (m *DeviceMesh) AxisSize(axis int) int {
	return m.axesSizes[axis]
}

// AxisIndex returns the index of the mesh axis with the given name.
func (m *DeviceMesh) AxisIndex(axisName string) (int, error) {
	idx, found := m.nameToAxis[axisName]
	if !found {
		return 0, errors.Errorf("mesh axis %q not found", axisName)
	}
	return idx, nil
}

// String implements the fmt.Stringer interface.
func (m *DeviceMesh) String() string {
	var sb strings.Builder
	sb.WriteString("DeviceMesh(axes={")
	for i, name := range m.axesNames {
		if i > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%s: %d", name, m.axesSizes[i])
	}
	sb.WriteString("})")
	return sb.String()
}
