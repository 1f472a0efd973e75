package version

import (
	"strings"
	"testing"
)

func TestInfoIncludesBuildMetadata(t *testing.T) {
	info := Info()
	for _, part := range []string{Version, GitCommit, BuildDate} {
		if !strings.Contains(info, part) {
			t.Errorf("Info() = %q, missing %q", info, part)
		}
	}
}
