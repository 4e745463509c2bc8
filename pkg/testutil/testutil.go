// Package testutil provides testing utilities for csvmachine
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// WriteFile writes content to name inside a per-test temporary directory
// and returns the path.
func WriteFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// GenerateCSV returns a CSV document with the header "id,name,amount" and
// n rows. Row i has id i, name "name-i" and amount i/100 with two
// fractional digits.
func GenerateCSV(n int) string {
	var b strings.Builder
	b.WriteString("id,name,amount\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,name-%d,%d.%02d\n", i, i, i/100, i%100)
	}
	return b.String()
}
