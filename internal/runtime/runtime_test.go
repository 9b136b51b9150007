package runtime

import (
	"strings"
	"testing"
)

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "alpine:latest", want: "docker.io/library/alpine:latest"},
		{ref: "alpine", want: "docker.io/library/alpine:latest"},
		{ref: "jakzal/phpqa:php8.1", want: "docker.io/jakzal/phpqa:php8.1"},
		{ref: "ghcr.io/jetify-com/devbox:0.13.0", want: "ghcr.io/jetify-com/devbox:0.13.0"},
		{ref: "Not A Ref", wantErr: true},
		{ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := normalizeRef(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("normalizeRef(%q) = %q, want error", tt.ref, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("normalizeRef(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestBindMounts(t *testing.T) {
	got := bindMounts([]Mount{
		{Source: "/data/volumes/nix", Destination: "/nix"},
		{Source: "/data/volumes/composer-vendor", Destination: "/app/vendor", ReadOnly: true},
	})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Type != "bind" || got[0].Source != "/data/volumes/nix" || got[0].Destination != "/nix" {
		t.Fatalf("mount[0] = %+v", got[0])
	}
	if strings.Join(got[0].Options, ",") != "rbind,rw" {
		t.Fatalf("mount[0].Options = %v, want rbind,rw", got[0].Options)
	}
	if strings.Join(got[1].Options, ",") != "rbind,ro" {
		t.Fatalf("mount[1].Options = %v, want rbind,ro", got[1].Options)
	}
}

func TestDefaultPlatform(t *testing.T) {
	p := defaultPlatform()
	if !strings.HasPrefix(p, "linux/") {
		t.Fatalf("defaultPlatform = %q, want linux/<arch>", p)
	}
	parts := strings.Split(p, "/")
	if len(parts) != 2 || parts[1] == "" {
		t.Fatalf("defaultPlatform = %q, want linux/<arch>", p)
	}
}
