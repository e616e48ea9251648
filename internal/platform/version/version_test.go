package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestUserAgent(t *testing.T) {
	origVersion, origCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = origVersion, origCommit })

	Version = "1.2.0"
	Commit = "abc1234def5678"
	assert.Equal(t, "appconfigctl/1.2.0 (abc1234)", UserAgent("appconfigctl"))

	Commit = "unknown"
	assert.Equal(t, "appconfigctl/1.2.0 (unknown)", UserAgent("appconfigctl"))
}
