package artifact

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/api"
)

func testArtifact() *Artifact {
	return &Artifact{
		Info: &ModuleInfo{Name: "m"},
		FunctionBodies: []FunctionBody{
			{
				Code:            []byte{1, 2, 3},
				Locals:          []api.ValueKind{api.KindI64},
				SourceLocations: []SourceLocation{{CodeOffset: 0, WasmOffset: 17}},
			},
		},
		CustomSections: []CustomSection{
			{Name: "names", Data: []byte{9}},
			{Name: "hot", Data: []byte{4, 5}, ReadExec: true},
		},
		Backend:   "interpreter",
		RawBinary: []byte{0, 0x61, 0x73, 0x6d},
	}
}

func TestSerializeDeterministic(t *testing.T) {
	a := testArtifact()
	one, err := Serialize(a)
	require.NoError(t, err)
	two, err := Serialize(a)
	require.NoError(t, err)
	require.Equal(t, one, two)
}

func TestSerializeRoundTrip(t *testing.T) {
	a := testArtifact()
	data, err := Serialize(a)
	require.NoError(t, err)

	env, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, "interpreter", env.Backend)
	require.Equal(t, "any", env.Target)
	require.Equal(t, a.RawBinary, env.RawBinary)
	require.Equal(t, a.FunctionBodies, env.FunctionBodies)
	require.Equal(t, a.CustomSections, env.CustomSections)
}

func TestDeserializeRejectsBadHeader(t *testing.T) {
	a := testArtifact()
	data, err := Serialize(a)
	require.NoError(t, err)

	tests := []struct {
		name    string
		corrupt func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad version", func(b []byte) []byte { b[11] = 0xff; return b }},
		{"truncated", func(b []byte) []byte { return b[:5] }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cp := make([]byte, len(data))
			copy(cp, data)
			_, err := Deserialize(tc.corrupt(cp))
			require.Error(t, err)
			var derr *DeserializeError
			require.ErrorAs(t, err, &derr)
			require.True(t, derr.Incompatible)
		})
	}
}

func TestTargetTriple(t *testing.T) {
	require.Equal(t, "any", TargetTriple("interpreter"))
	require.NotEqual(t, "any", TargetTriple("native"))
}
