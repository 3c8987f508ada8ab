package backend_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmforge/wasmforge/internal/backend"

	_ "github.com/wasmforge/wasmforge/internal/engine/interpreter"
	_ "github.com/wasmforge/wasmforge/internal/engine/native"
)

func TestRegisteredBackends(t *testing.T) {
	names := backend.Names()
	require.Contains(t, names, "interpreter")
	require.Contains(t, names, "native")
	require.NotContains(t, names, "hostjs") // js/wasm only
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := backend.New("no-such-backend")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no-such-backend")
}

func TestNewReturnsFreshEngines(t *testing.T) {
	a, err := backend.New("interpreter")
	require.NoError(t, err)
	b, err := backend.New("interpreter")
	require.NoError(t, err)
	require.Equal(t, a.Name(), b.Name())
}
