package catalog

import "maps"

// Logical cache volume names.
const (
	VolumeNix         = "nix"                  // Nix store shared by every devbox toolchain.
	VolumeNixEtc      = "nix-etc"              // Nix configuration.
	VolumeVendor      = "composer-vendor"      // Composer dependencies.
	VolumeNodeModules = "symfony-node_modules" // Node dependencies for asset tooling.
)

// Toolchain volumes hold package-manager state reused by every job; their
// writers are idempotent installers. Dependency volumes are rewritten by
// `composer install` and belong to one job at a time.
var (
	ToolchainVolumes  = []string{VolumeNix, VolumeNixEtc}
	DependencyVolumes = []string{VolumeVendor, VolumeNodeModules}
)

// Stages used when the catalog is rendered as a CI document.
const (
	StageLint     = "lint"
	StageAnalysis = "analysis"
	StageTest     = "test"
)

// Stage names in execution order.
var Stages = []string{StageLint, StageAnalysis, StageTest}

const (
	baseImage   = "alpine:latest"
	projectRoot = "/app"
)

// Installs the shell tools, Nix and devbox. Each installer is skipped when
// its result is already present in the mounted toolchain volumes.
var devboxBootstrap = []string{
	"apk update",
	"apk add bash curl git",
	"[ -x /nix/var/nix/profiles/default/bin/nix ] || " +
		"curl --proto '=https' --tlsv1.2 -sSf -L https://install.determinate.systems/nix | " +
		"sh -s -- install linux --extra-conf 'sandbox = false' --init none --no-confirm",
	"command -v devbox >/dev/null || curl -fsSL https://get.jetify.com/devbox | bash -s -- -f",
}

// Seeds the project's devbox environment when the repository does not ship
// one.
var devboxSetup = []string{
	"[ -f devbox.json ] || devbox init",
	"grep -q 'php@8.1' devbox.json || devbox add mariadb@latest php@8.1 nodejs@18 redis@latest " +
		"php81Packages.composer@latest php81Packages.phpcs@latest symfony-cli@latest yarn@latest",
}

var baseEnv = map[string]string{
	"PATH": "/nix/var/nix/profiles/default/bin:/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
}

const (
	composerInstall      = "devbox run -- composer install --no-interaction"
	composerInstallQuiet = "devbox run -- composer install --no-interaction --no-progress"
	phpunitInstall       = "devbox run -- ./vendor/bin/simple-phpunit install"
	phpunitVersion       = "devbox run -- ./vendor/bin/simple-phpunit --version"
)

// Builds a definition running on the devbox toolchain with the standard
// caches, working directory and bootstrap.
func devboxJob(name Name, stage, description string, env map[string]string, commands ...string) Definition {
	merged := maps.Clone(baseEnv)
	maps.Copy(merged, env)

	return Definition{
		Name:        name,
		Description: description,
		Stage:       stage,
		Image:       baseImage,
		Bootstrap:   devboxBootstrap,
		Caches: []CacheMount{
			{Volume: VolumeNix, Path: "/nix"},
			{Volume: VolumeNixEtc, Path: "/etc/nix"},
			{Volume: VolumeVendor, Path: projectRoot + "/vendor"},
			{Volume: VolumeNodeModules, Path: projectRoot + "/node_modules"},
		},
		Workdir:  projectRoot,
		Env:      merged,
		Commands: append(append([]string{}, devboxSetup...), commands...),
	}
}

// The jobs of a Symfony project, in declaration order.
func definitions() []Definition {
	return []Definition{
		devboxJob(StyleCheck, StageLint,
			"Check coding standards (PSR-12) with PHP_CodeSniffer", nil,
			composerInstall,
			"devbox run -- phpcs -v --standard=PSR12 --ignore=./src/Kernel.php ./src",
		),
		devboxJob(StaticAnalysis, StageAnalysis,
			"Run static analysis with PHPStan", nil,
			composerInstallQuiet,
			phpunitInstall,
			phpunitVersion,
			"devbox run -- ./vendor/bin/phpstan analyse ./src --memory-limit=1G",
		),
		devboxJob(TemplateLint, StageLint,
			"Lint Twig templates", map[string]string{"DEVBOX_DEBUG": "1"},
			composerInstallQuiet,
			"devbox run -- ./bin/console lint:twig templates --env=prod",
		),
		devboxJob(ConfigFormatLint, StageLint,
			"Lint YAML configuration files", nil,
			composerInstallQuiet,
			"devbox run -- ./bin/console lint:yaml config --parse-tags",
		),
		devboxJob(TranslationLint, StageLint,
			"Lint XLIFF translation files", nil,
			composerInstallQuiet,
			"devbox run -- ./bin/console lint:xliff translations",
		),
		devboxJob(DependencyGraphLint, StageLint,
			"Lint the service container and its argument types", nil,
			composerInstallQuiet,
			"devbox run -- ./bin/console lint:container --no-debug",
		),
		devboxJob(SchemaValidationLint, StageLint,
			"Validate Doctrine mapping files", nil,
			composerInstallQuiet,
			"devbox run -- ./bin/console doctrine:schema:validate --skip-sync -vvv --no-interaction",
		),
		devboxJob(UnitTest, StageTest,
			"Run the PHPUnit test suite", nil,
			composerInstall,
			phpunitInstall,
			phpunitVersion,
			"devbox run -- ./vendor/bin/simple-phpunit",
		),
	}
}

// Cheap checks first; static analysis and tests last because they are the
// slowest and the ones most often skipped while fixing earlier failures.
var defaultSequence = []Name{
	TemplateLint,
	ConfigFormatLint,
	TranslationLint,
	DependencyGraphLint,
	SchemaValidationLint,
	StaticAnalysis,
	UnitTest,
}

// Returns the catalog of Symfony verification jobs.
func Default() *Catalog {
	c, err := New(definitions(), defaultSequence)
	if err != nil {
		panic(err)
	}
	return c
}
