package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanAppID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"files", "files"},
		{"theming", "theming"},
		{"../etc", "etc"},
		{"a/b", "ab"},
		{`a\b`, "ab"},
		{"nul\x00byte", "nulbyte"},
		{"....", ""},
		{"app.v2", "app.v2"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanAppID(tt.in))
		})
	}
}

func TestValidAppID(t *testing.T) {
	assert.True(t, ValidAppID("files"))
	assert.False(t, ValidAppID(""))
	assert.False(t, ValidAppID("../files"))
	assert.False(t, ValidAppID("files/sub"))
}

func TestIsProtectedKey(t *testing.T) {
	assert.True(t, IsProtectedKey("core", "public_webdav"))
	assert.True(t, IsProtectedKey("core", "remote_files"))
	assert.False(t, IsProtectedKey("core", "installedat"))
	assert.False(t, IsProtectedKey("files", "public_webdav"))
	assert.False(t, IsProtectedKey("core", "xpublic_webdav"))
}
