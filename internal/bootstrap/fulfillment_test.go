package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFulfillmentRequiresInfrastructure(t *testing.T) {
	_, err := NewFulfillment(Params{})
	require.Error(t, err)
}
