package gridline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShift_Apply(t *testing.T) {
	ins := Shift{Axis: AxisRow, At: 1}
	moved, ok := ins.Apply(ref("A1"))
	assert.True(t, ok)
	assert.Equal(t, ref("A1"), moved)
	moved, _ = ins.Apply(ref("C2"))
	assert.Equal(t, ref("C3"), moved)

	del := Shift{Axis: AxisCol, At: 1, Delete: true}
	_, ok = del.Apply(ref("B7"))
	assert.False(t, ok)
	moved, ok = del.Apply(ref("D7"))
	assert.True(t, ok)
	assert.Equal(t, ref("C7"), moved)
}

func TestShiftReferences(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		shift  Shift
		want   string
		broken bool
	}{
		{"insert row above", "A1 + A3", Shift{Axis: AxisRow, At: 1}, "A1 + A4", false},
		{"insert column", "SUM(A1:C1) + @B2", Shift{Axis: AxisCol, At: 1}, "SUM(A1:D1) + @C2", false},
		{"delete other row", "A1 + A3", Shift{Axis: AxisRow, At: 1, Delete: true}, "A1 + A2", false},
		{"delete referenced row", "A1 + A2", Shift{Axis: AxisRow, At: 1, Delete: true}, "A1 + #REF!", true},
		{"delete range corner", "SUM(A1:A2)", Shift{Axis: AxisRow, At: 0, Delete: true}, "SUM(#REF!)", true},
		{"delete typed ref", "@B1 * 2", Shift{Axis: AxisCol, At: 1, Delete: true}, "#REF! * 2", true},
		{"strings and members kept", `"A1" + x.A1 + A1`, Shift{Axis: AxisRow, At: 0}, `"A1" + x.A1 + A2`, false},
		{"spacing kept", "SUM( A1 : A2 )", Shift{Axis: AxisRow, At: 0}, "SUM( A2 : A3 )", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, broken, err := ShiftReferences(tc.raw, tc.shift)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.broken, broken)
		})
	}
}

func TestOffsetReferences(t *testing.T) {
	got, broken, err := OffsetReferences("A1 + SUM(B1:B3)", 2, 1)
	require.NoError(t, err)
	assert.False(t, broken)
	assert.Equal(t, "B3 + SUM(C3:C5)", got)

	got, broken, err = OffsetReferences("A2 + B5", -2, 0)
	require.NoError(t, err)
	assert.True(t, broken)
	assert.Equal(t, "#REF! + B3", got)
}
