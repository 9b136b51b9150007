// Package gitlab renders catalog jobs as a GitLab CI document.
//
// This is the alternate output mode: instead of running the jobs locally,
// the definitions are serialised into a .gitlab-ci.yml that a GitLab runner
// executes. Each job keeps its image, stage, environment and commands; the
// bootstrap commands become before_script, and cache volumes that live
// inside the project directory become GitLab caches keyed by volume name.
// Volumes outside the project (a Nix store, for instance) cannot be cached by
// GitLab and are left out.
package gitlab
