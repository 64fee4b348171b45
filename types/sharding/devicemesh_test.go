package sharding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeviceMesh(t *testing.T) {
	mesh, err := NewDeviceMesh("mesh", []int{2, 4}, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, "mesh", mesh.Name())
	assert.Equal(t, 2, mesh.Rank())
	assert.Equal(t, 8, mesh.NumDevices())
	assert.Equal(t, []string{"x", "y"}, mesh.AxesNames())
	assert.Equal(t, []int{2, 4}, mesh.AxesSizes())
	assert.Equal(t, 2, mesh.AxisSize(0))
	assert.Equal(t, 4, mesh.AxisSize(1))
	assert.Equal(t, "DeviceMesh(axes={x: 2, y: 4})", mesh.String())

	// Accessors return copies: mutating them must not affect the mesh.
	mesh.AxesNames()[0] = "mutated"
	mesh.AxesSizes()[0] = 999
	assert.Equal(t, []string{"x", "y"}, mesh.AxesNames())
	assert.Equal(t, []int{2, 4}, mesh.AxesSizes())
}

func TestNewDeviceMesh_Errors(t *testing.T) {
	testCases := []struct {
		name      string
		meshName  string
		axesSizes []int
		axesNames []string
		wantErr   string
	}{
		{"length mismatch", "mesh", []int{2, 4}, []string{"x"}, "must have the same length"},
		{"no axes", "mesh", nil, nil, "cannot be empty"},
		{"invalid mesh name", "my mesh", []int{2}, []string{"x"}, "not a valid identifier"},
		{"empty axis name", "mesh", []int{2, 2}, []string{"x", ""}, "cannot be empty"},
		{"invalid axis name", "mesh", []int{2}, []string{"x axis"}, "not a valid identifier"},
		{"duplicate axis name", "mesh", []int{2, 2}, []string{"x", "x"}, "is duplicated"},
		{"zero axis size", "mesh", []int{2, 0}, []string{"x", "y"}, "must have size >= 1"},
		{"negative axis size", "mesh", []int{-1}, []string{"x"}, "must have size >= 1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDeviceMesh(tc.meshName, tc.axesSizes, tc.axesNames)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDeviceMeshAxisIndex(t *testing.T) {
	mesh, err := NewDeviceMesh("mesh", []int{2, 4}, []string{"x", "y"})
	require.NoError(t, err)

	idx, err := mesh.AxisIndex("y")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = mesh.AxisIndex("z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `mesh axis "z" not found`)
}
