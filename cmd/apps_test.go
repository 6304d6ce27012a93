// File: cmd/apps_test.go
package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/droidpilot/internal/apps"
)

func TestAppsCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("should list the built-in registry when no file exists", func(t *testing.T) {
		env := newTestEnv(t, "")
		out, err := env.executeCommand(t, ctx, "apps", "list")

		require.NoError(t, err)
		assert.Contains(t, out, "NAME")
		for name, pkg := range apps.DefaultPackages {
			assert.Contains(t, out, name)
			assert.Contains(t, out, pkg)
		}
	})

	t.Run("should persist a new mapping and read it back", func(t *testing.T) {
		env := newTestEnv(t, "")

		out, err := env.executeCommand(t, ctx, "apps", "set", "Notes", "com.example.notes")
		require.NoError(t, err)
		assert.Contains(t, out, "Notes -> com.example.notes")

		out, err = env.executeCommand(t, ctx, "apps", "get", "Notes")
		require.NoError(t, err)
		assert.Equal(t, "com.example.notes\n", out)

		registry, err := apps.LoadFile(env.appsFile)
		require.NoError(t, err)
		pkg, ok := registry.Lookup("Notes")
		require.True(t, ok)
		assert.Equal(t, "com.example.notes", pkg)
	})

	t.Run("should reject an invalid package id", func(t *testing.T) {
		env := newTestEnv(t, "")
		_, err := env.executeCommand(t, ctx, "apps", "set", "Notes", "not a package")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid package id")
	})

	t.Run("should fail for an unknown app", func(t *testing.T) {
		env := newTestEnv(t, "")
		_, err := env.executeCommand(t, ctx, "apps", "get", "NoSuchApp")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})
}
