package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoad_Athena(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - name: prod
    id: "123456789012"
    iam: prod.json
athena:
  s3_bucket: cloudtrail-logs
  path: AWSLogs
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UsesElasticsearch() {
		t.Error("expected Athena to be selected when elasticsearch is absent")
	}
	if cfg.Athena.S3Bucket != "cloudtrail-logs" {
		t.Errorf("unexpected s3_bucket: %q", cfg.Athena.S3Bucket)
	}
}

func TestLoad_ElasticsearchSelectedWhenPresent(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - name: prod
    id: "123456789012"
    iam: prod.json
elasticsearch:
  host: es.internal
  port: 9200
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.UsesElasticsearch() {
		t.Error("expected Elasticsearch to be selected when present in config")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
	var cfgErr *ConfigError
	if !asConfigError(err, &cfgErr) {
		t.Errorf("expected a *ConfigError, got %T", err)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "accounts: [this is not valid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}

func TestLoad_NeitherBackendConfigured(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - name: prod
    id: "123456789012"
    iam: prod.json
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error when neither athena nor elasticsearch is configured")
	}
}

func TestResolve_ByName(t *testing.T) {
	cfg := &Config{Accounts: []Account{{Name: "prod", ID: "123456789012", IAM: "prod.json"}}}

	account, err := cfg.Resolve("prod")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if account.ID != "123456789012" {
		t.Errorf("unexpected account resolved: %+v", account)
	}
}

func TestResolve_ByID(t *testing.T) {
	cfg := &Config{Accounts: []Account{{Name: "prod", ID: "123456789012", IAM: "prod.json"}}}

	account, err := cfg.Resolve("123456789012")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if account.Name != "prod" {
		t.Errorf("unexpected account resolved: %+v", account)
	}
}

func TestResolve_NotFound(t *testing.T) {
	cfg := &Config{Accounts: []Account{{Name: "prod", ID: "123456789012", IAM: "prod.json"}}}

	if _, err := cfg.Resolve("staging"); err == nil {
		t.Fatal("expected an error for an unknown account")
	}
}

func TestResolve_InvalidAccountID(t *testing.T) {
	cfg := &Config{Accounts: []Account{{Name: "prod", ID: "not-an-id", IAM: "prod.json"}}}

	if _, err := cfg.Resolve("prod"); err == nil {
		t.Fatal("expected an error for a non-12-digit account id")
	}
}

func TestResolve_MissingFields(t *testing.T) {
	cfg := &Config{Accounts: []Account{{Name: "prod", ID: "123456789012"}}}

	if _, err := cfg.Resolve("prod"); err == nil {
		t.Fatal("expected an error for an account missing its iam field")
	}
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if ok {
		*target = ce
	}
	return ok
}
