package pipeline

import (
	"slices"
	"testing"

	"github.com/cruciblehq/cruxci/internal/catalog"
)

func TestNewExecState(t *testing.T) {
	def := &catalog.Definition{Workdir: "/app", Env: map[string]string{"A": "1"}}

	s := newExecState("", def)
	if s.shell != defaultShell {
		t.Fatalf("shell = %q, want %q", s.shell, defaultShell)
	}
	if s.workdir != "/app" {
		t.Fatalf("workdir = %q, want /app", s.workdir)
	}
	if s.env["A"] != "1" {
		t.Fatalf("env = %v, want A=1", s.env)
	}

	s.env["B"] = "2"
	if _, ok := def.Env["B"]; ok {
		t.Fatal("state shares its environment with the definition")
	}
}

func TestNewExecStateShell(t *testing.T) {
	s := newExecState("/bin/bash", &catalog.Definition{})
	if s.shell != "/bin/bash" {
		t.Fatalf("shell = %q, want /bin/bash", s.shell)
	}
	if len(s.environ()) != 0 {
		t.Fatalf("environ = %v, want empty", s.environ())
	}
}

func TestWithWorkdir(t *testing.T) {
	s := newExecState("", &catalog.Definition{Workdir: "/app", Env: map[string]string{"A": "1"}})

	r := s.withWorkdir("/")
	if r.workdir != "/" {
		t.Fatalf("resolved workdir = %q, want /", r.workdir)
	}
	if s.workdir != "/app" {
		t.Fatalf("state workdir changed to %q", s.workdir)
	}
	if r.env["A"] != "1" {
		t.Fatalf("resolved env = %v, want A=1", r.env)
	}

	r.env["A"] = "override"
	if s.env["A"] != "1" {
		t.Fatalf("state env[A] = %q after resolved mutation, want 1", s.env["A"])
	}
}

func TestWithWorkdirEmptyKeepsCurrent(t *testing.T) {
	s := newExecState("", &catalog.Definition{Workdir: "/app"})
	if r := s.withWorkdir(""); r.workdir != "/app" {
		t.Fatalf("workdir = %q, want /app", r.workdir)
	}
}

func TestCommand(t *testing.T) {
	s := newExecState("/bin/bash", &catalog.Definition{
		Workdir: "/app",
		Env:     map[string]string{"B": "2", "A": "1"},
	})

	cmd := s.command("composer install")
	if cmd.Shell != "/bin/bash" || cmd.Line != "composer install" || cmd.Workdir != "/app" {
		t.Fatalf("command = %+v", cmd)
	}
	if want := []string{"A=1", "B=2"}; !slices.Equal(cmd.Env, want) {
		t.Fatalf("env = %v, want %v", cmd.Env, want)
	}
}
