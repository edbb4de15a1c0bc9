package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/jonanatree/farecard/internal/cardgen"
	"github.com/stretchr/testify/require"
)

func TestGenSequence(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"gen", "-sequence", "-verbose", "-n", "3"}, &out)
	require.NoError(t, err)

	lines := strings.Fields(out.String())
	require.Len(t, lines, 3)
	for _, number := range lines {
		require.NoError(t, cardgen.Validate(number))
		require.True(t, strings.HasPrefix(number, cardgen.DefaultPrefix))
	}
	require.NotEqual(t, lines[0], lines[1])
}

func TestGenMasksByDefault(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"gen"}, &out)
	require.NoError(t, err)

	masked := strings.TrimSpace(out.String())
	require.Len(t, masked, cardgen.DefaultLength)
	require.True(t, strings.HasPrefix(masked, "******"))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"explode"}, &bytes.Buffer{})
	require.ErrorContains(t, err, `unknown command "explode"`)

	err = run(context.Background(), nil, &bytes.Buffer{})
	require.ErrorContains(t, err, "usage: cardctl")
}

func TestRideRequiresCard(t *testing.T) {
	err := run(context.Background(), []string{"ride", "-distance", "5"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "-card is required")
}
