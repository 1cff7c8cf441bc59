package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetIDPrefersExplicitValue(t *testing.T) {
	t.Setenv("SUPERMARKET_INSTANCE_ID", " publisher-2 ")
	require.Equal(t, "publisher-2", GetID())
}

func TestGetIDFallsBackToHost(t *testing.T) {
	t.Setenv("SUPERMARKET_INSTANCE_ID", "")
	require.NotEmpty(t, GetID())
}
