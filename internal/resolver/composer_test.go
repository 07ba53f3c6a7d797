package resolver

import "testing"

func TestComposerResolverDetect(t *testing.T) {
	dir := t.TempDir()
	r := ComposerResolver{}
	if r.Detect(dir) {
		t.Error("expected no detection in an empty directory")
	}
	writeFile(t, dir, "composer.json", `{"require": {"monolog/monolog": "^2.0"}}`)
	if !r.Detect(dir) {
		t.Error("expected detection once composer.json exists")
	}
}

func TestComposerResolverParsesLockfile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "composer.json", `{"require": {"monolog/monolog": "^2.0", "php": ">=8.0"}}`)
	writeFile(t, dir, "composer.lock", `{
  "packages": [
    {"name": "monolog/monolog", "version": "2.3.5", "require": {"php": ">=7.2", "psr/log": "^1.0"}}
  ],
  "packages-dev": [
    {"name": "phpunit/phpunit", "version": "9.5.0"}
  ]
}`)

	records, err := ComposerResolver{}.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var monologVersion, monologDeps string
	var phpunitDev bool
	var appDirect bool
	for _, rec := range records {
		if rec.ID.Name == "monolog/monolog" {
			monologVersion = rec.ID.Version
			for _, d := range rec.DirectDeps {
				monologDeps += d.Name + " "
			}
		}
		if rec.ID.Name == "phpunit/phpunit" {
			phpunitDev = rec.DevOnly
		}
		if rec.IsApplication {
			for _, d := range rec.DirectDeps {
				if d.Name == "monolog/monolog" {
					appDirect = true
				}
			}
		}
	}
	if monologVersion != "2.3.5" {
		t.Errorf("expected monolog/monolog@2.3.5, got %q", monologVersion)
	}
	if monologDeps != "psr/log " {
		t.Errorf("expected the php platform requirement filtered out, got deps %q", monologDeps)
	}
	if !phpunitDev {
		t.Error("expected phpunit/phpunit to be marked DevOnly from packages-dev")
	}
	if !appDirect {
		t.Error("expected monolog/monolog recorded as a direct dependency of the application")
	}
}
