package infra

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"csv ok", Config{Storage: StorageConfig{Driver: "csv", CSVPath: "x.csv"}}, false},
		{"csv no path", Config{Storage: StorageConfig{Driver: "csv"}}, true},
		{"sqlite no path", Config{Storage: StorageConfig{Driver: "sqlite"}}, true},
		{"postgres no url", Config{Storage: StorageConfig{Driver: "postgres"}}, true},
		{"unknown driver", Config{Storage: StorageConfig{Driver: "mongo"}}, true},
		{"bad reference date", Config{
			Storage:   StorageConfig{Driver: "csv", CSVPath: "x.csv"},
			Analytics: AnalyticsConfig{ReferenceDate: "2025/07/01"},
		}, true},
		{"reference date ok", Config{
			Storage:   StorageConfig{Driver: "csv", CSVPath: "x.csv"},
			Analytics: AnalyticsConfig{ReferenceDate: "2025-07-01"},
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("STORAGE_SQLITE_PATH", "/tmp/a.db")
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("ANALYTICS_REFERENCE_DATE", "2025-07-01")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.SQLitePath != "/tmp/a.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Server.Port != 9001 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Analytics.TopUsersLimit != 10 {
		t.Fatalf("top users default = %d", cfg.Analytics.TopUsersLimit)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"}); err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
