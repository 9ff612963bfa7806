package storekit

import (
	"strings"
	"testing"
)

func TestRegistryConfigFromMap(t *testing.T) {
	cfg, err := RegistryConfigFromMap(map[string]any{
		"backends": map[string]any{
			"blob": map[string]any{
				"type": "counting-fake",
				"options": map[string]any{
					"bucket": "reports-bucket",
					"region": "eu-west-1",
				},
			},
		},
		"stores": map[string]any{
			"reports": map[string]any{
				"backend":   "blob",
				"root_path": "teams/analytics",
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backends["blob"].Type != "counting-fake" {
		t.Errorf("decoded type = %q", cfg.Backends["blob"].Type)
	}
	if cfg.Backends["blob"].Options["bucket"] != "reports-bucket" {
		t.Errorf("decoded options = %v", cfg.Backends["blob"].Options)
	}
	if cfg.Stores["reports"].RootPath != "teams/analytics" {
		t.Errorf("decoded root_path = %q", cfg.Stores["reports"].RootPath)
	}
}

func TestRegistryConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RegistryConfig
		wantErr string
	}{
		{
			name: "store references missing backend",
			cfg: RegistryConfig{
				Backends: map[string]BackendConfig{"a": {Type: "x"}},
				Stores:   map[string]StoreProfile{"s": {Backend: "missing"}},
			},
			wantErr: "unknown backend",
		},
		{
			name: "backend without type",
			cfg: RegistryConfig{
				Backends: map[string]BackendConfig{"a": {}},
				Stores:   map[string]StoreProfile{"s": {Backend: "a"}},
			},
			wantErr: "invalid registry config",
		},
		{
			name: "invalid root path",
			cfg: RegistryConfig{
				Backends: map[string]BackendConfig{"a": {Type: "x"}},
				Stores:   map[string]StoreProfile{"s": {Backend: "a", RootPath: "../up"}},
			},
			wantErr: "root_path",
		},
		{
			name:    "empty config",
			cfg:     RegistryConfig{},
			wantErr: "invalid registry config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateListsAvailableBackends(t *testing.T) {
	cfg := RegistryConfig{
		Backends: map[string]BackendConfig{
			"alpha": {Type: "x"},
			"beta":  {Type: "y"},
		},
		Stores: map[string]StoreProfile{"s": {Backend: "gamma"}},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "alpha, beta") {
		t.Errorf("error %q does not list available backends", err.Error())
	}
}

func TestEnvConfigExpansion(t *testing.T) {
	env := &EnvConfig{
		Backend:           "s3",
		RootPath:          "teams/analytics",
		S3Bucket:          "data",
		S3Region:          "us-east-1",
		S3AccessKeyID:     "AKIA",
		S3SecretAccessKey: "secret",
	}
	cfg, err := env.RegistryConfig()
	if err != nil {
		t.Fatal(err)
	}
	bc, ok := cfg.Backends["default"]
	if !ok {
		t.Fatal("no default backend")
	}
	if bc.Type != "s3" || bc.Options["bucket"] != "data" {
		t.Errorf("backend config = %+v", bc)
	}
	if cfg.Stores["default"].RootPath != "teams/analytics" {
		t.Errorf("store profile = %+v", cfg.Stores["default"])
	}
}

func TestEnvConfigUnknownBackend(t *testing.T) {
	env := &EnvConfig{Backend: "carrier-pigeon"}
	_, err := env.RegistryConfig()
	if err == nil {
		t.Fatal("expected error for unknown backend type")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error = %q", err.Error())
	}
}
