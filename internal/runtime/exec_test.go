package runtime

import (
	"slices"
	"strings"
	"testing"
)

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides []string
		want      []string
	}{
		{
			name:      "override existing key",
			base:      []string{"PATH=/usr/bin", "HOME=/root"},
			overrides: []string{"PATH=/nix/var/nix/profiles/default/bin:/usr/bin"},
			want:      []string{"HOME=/root", "PATH=/nix/var/nix/profiles/default/bin:/usr/bin"},
		},
		{
			name:      "add new key",
			base:      []string{"HOME=/root"},
			overrides: []string{"DEVBOX_DEBUG=1"},
			want:      []string{"DEVBOX_DEBUG=1", "HOME=/root"},
		},
		{
			name:      "empty base",
			overrides: []string{"APP_ENV=test"},
			want:      []string{"APP_ENV=test"},
		},
		{
			name: "empty overrides",
			base: []string{"APP_ENV=test"},
			want: []string{"APP_ENV=test"},
		},
		{
			name: "both empty",
			want: []string{},
		},
		{
			name: "value with equals sign",
			base: []string{"DATABASE_URL=sqlite:///%kernel.project_dir%/var/app.db?x=1"},
			want: []string{"DATABASE_URL=sqlite:///%kernel.project_dir%/var/app.db?x=1"},
		},
		{
			name:      "malformed entries skipped",
			base:      []string{"NOEQUALS", "A=1"},
			overrides: []string{"ALSO_BAD", "B=2"},
			want:      []string{"A=1", "B=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeEnv(tt.base, tt.overrides)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("mergeEnv = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeEnvSorted(t *testing.T) {
	got := mergeEnv([]string{"Z=1", "M=2"}, []string{"A=3"})
	if !slices.IsSorted(got) {
		t.Fatalf("mergeEnv = %v, want sorted", got)
	}
}

func TestNextExecID(t *testing.T) {
	a := nextExecID()
	b := nextExecID()
	if a == b {
		t.Fatalf("nextExecID returned duplicate: %q", a)
	}
	if !strings.HasPrefix(a, "exec-") || !strings.HasPrefix(b, "exec-") {
		t.Fatalf("nextExecID = %q, %q, want exec- prefix", a, b)
	}
}
