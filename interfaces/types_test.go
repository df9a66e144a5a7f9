package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBumpMajor(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"v1.0.0", "v2.0.0"},
		{"v1.2.3", "v2.0.0"},
		{"v12.9.1", "v13.0.0"},
		{"v0.0.1", "v1.0.0"},
	}
	for _, tc := range cases {
		got, err := BumpMajor(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestBumpMajorRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "1.0.0", "vx.0.0", "v-1.0.0", "latest"} {
		_, err := BumpMajor(in)
		assert.ErrorIs(t, err, ErrVersionSyntax, in)
	}
}

func TestGradientPayloadValidate(t *testing.T) {
	ok := GradientPayload{Dim: 2, Values: []float64{0.5, -0.25}}
	require.NoError(t, ok.Validate())

	empty := GradientPayload{}
	assert.ErrorIs(t, empty.Validate(), ErrEmptyGradient)
	// empty is fine for the bootstrap model payload
	assert.NoError(t, empty.ValidateAllowEmpty())

	tagged := GradientPayload{Dim: 3, Values: []float64{1, 2}}
	assert.ErrorIs(t, tagged.Validate(), ErrDimensionMismatch)
	assert.ErrorIs(t, tagged.ValidateAllowEmpty(), ErrDimensionMismatch)
}

func TestSnapshotLocationParsing(t *testing.T) {
	loc, err := NewSnapshotLocation("file:///var/lib/fedauth/snapshots")
	require.NoError(t, err)
	assert.Equal(t, "file", loc.Scheme)

	loc, err = NewSnapshotLocation("s3://models-bucket/snapshots?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", loc.Query.Get("region"))

	_, err = NewSnapshotLocation("ftp://nope")
	assert.ErrorIs(t, err, ErrInvalidSnapshotURI)
}
