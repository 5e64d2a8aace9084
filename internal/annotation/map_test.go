package annotation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap_SetGet(t *testing.T) {
	m := NewMap()
	require.Nil(t, m.Get("1"))
	require.False(t, m.Has("1"))

	in := []string{"X", "Y"}
	m.Set("1", in)
	in[0] = "mutated"
	require.Equal(t, []string{"X", "Y"}, m.Get("1"), "Set stores a copy")

	out := m.Get("1")
	out[0] = "mutated"
	require.Equal(t, []string{"X", "Y"}, m.Get("1"), "Get returns a copy")

	m.Set("2", nil)
	require.True(t, m.Has("2"))
	require.Empty(t, m.Get("2"))
	require.Equal(t, 2, m.Len())
}

func TestMap_KeysKeepInsertionOrder(t *testing.T) {
	m := NewMap()
	m.Set("b", []string{"X"})
	m.Set("a", []string{"Y"})
	m.Set("b", []string{"Z"})

	require.Equal(t, []string{"b", "a"}, m.Keys())
}

func TestCountAnnotated(t *testing.T) {
	m := NewMap()
	require.Equal(t, 0, m.CountAnnotated())

	m.Set("1", []string{"X"})
	m.Set("2", []string{})
	m.Set("3", []string{"X", "Y"})

	// Absent ("4") and present-empty ("2") keys are both excluded.
	require.Equal(t, 2, m.CountAnnotated())
	require.True(t, m.IsAnnotated("1"))
	require.False(t, m.IsAnnotated("2"))
	require.False(t, m.IsAnnotated("4"))
}

func TestMap_Equal(t *testing.T) {
	m := NewMap()
	m.Set("1", []string{"X", "Y"})
	m.Set("2", nil)

	other := NewMap()
	other.Set("2", []string{})
	other.Set("1", []string{"Y", "X"})
	require.True(t, m.Equal(other), "key order and label order are ignored")

	other.Set("1", []string{"Y"})
	require.False(t, m.Equal(other))

	other.Set("1", []string{"X", "Y"})
	other.Set("3", nil)
	require.False(t, m.Equal(other))

	require.False(t, m.Equal(nil))
}

func TestSameLabels(t *testing.T) {
	require.True(t, SameLabels(nil, []string{}))
	require.True(t, SameLabels([]string{"X", "Y"}, []string{"X", "Y"}))
	require.True(t, SameLabels([]string{"X", "Y"}, []string{"Y", "X"}))
	require.True(t, SameLabels([]string{"X", "X"}, []string{"X"}))
	require.False(t, SameLabels([]string{"X", "Y"}, []string{"X", "Z"}))
	require.False(t, SameLabels([]string{"X"}, nil))
}

func TestNormalizeLabels(t *testing.T) {
	got := NormalizeLabels([]string{" X", "Y ", "", "X", "  ", "Z"})
	require.Equal(t, []string{"X", "Y", "Z"}, got)
	require.NotNil(t, NormalizeLabels(nil))
}

func TestValidateLabel(t *testing.T) {
	require.NoError(t, ValidateLabel("sport"))
	require.NoError(t, ValidateLabel("kultura; sztuka"))
	require.Error(t, ValidateLabel("a,b"))
	require.Error(t, ValidateLabel("a\nb"))
}
