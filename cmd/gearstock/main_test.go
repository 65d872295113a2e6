package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trekgear/gearstock/internal/app"
	_ "github.com/trekgear/gearstock/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
