package versions

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	t.Parallel()

	info := GetVersionInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestFillFromBuildInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		initial  VersionInfo
		bi       *debug.BuildInfo
		expected VersionInfo
	}{
		{
			name:    "vcs settings fill blanks",
			initial: VersionInfo{Version: "dev"},
			bi: &debug.BuildInfo{
				Main: debug.Module{Version: "v1.2.3"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc123"},
					{Key: "vcs.time", Value: "2025-05-01T10:00:00Z"},
				},
			},
			expected: VersionInfo{Version: "v1.2.3", Commit: "abc123", BuildDate: "2025-05-01T10:00:00Z"},
		},
		{
			name:    "ldflags take precedence",
			initial: VersionInfo{Version: "v2.0.0", Commit: "deadbeef", BuildDate: "today"},
			bi: &debug.BuildInfo{
				Main:     debug.Module{Version: "v1.2.3"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
			},
			expected: VersionInfo{Version: "v2.0.0", Commit: "deadbeef", BuildDate: "today"},
		},
		{
			name:     "devel module version is ignored",
			initial:  VersionInfo{Version: "dev"},
			bi:       &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			expected: VersionInfo{Version: "dev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			info := tt.initial
			fillFromBuildInfo(&info, tt.bi)
			assert.Equal(t, tt.expected, info)
		})
	}
}
