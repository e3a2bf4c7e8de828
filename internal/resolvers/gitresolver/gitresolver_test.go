package gitresolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGitHubFormatter(t *testing.T) {
	assert.Equal(t, "https://github.com/osdeverr/rebs.git", GitHubFormatter("osdeverr/rebs"))
}

func TestIdentityFormatter(t *testing.T) {
	assert.Equal(t, "https://example.com/x.git", IdentityFormatter("https://example.com/x.git"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "osdeverr_rebs", sanitize("osdeverr/rebs"))
	assert.Equal(t, "host_com_repo", sanitize("host:com/repo"))
}
