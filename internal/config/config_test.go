// Copyright 2025 The ChainDeed Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		RPCURL:          "http://127.0.0.1:8545",
		ContractAddress: "",
		PrivateKey:      "",
		Account:         "",
		PinataBaseURL:   "https://api.pinata.cloud",
		RefreshInterval: "30s",
		FetchTimeout:    "10s",
		PollInterval:    "15s",
		ShutdownTimeout: "30s",
		MetricsPort:     12798,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	resetGlobalConfig()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RPCURL != "http://127.0.0.1:8545" {
		t.Errorf("unexpected default RPC URL: %s", cfg.RPCURL)
	}
	if cfg.RefreshInterval != "30s" {
		t.Errorf("unexpected default refresh interval: %s", cfg.RefreshInterval)
	}
	if cfg.MetricsPort != 12798 {
		t.Errorf("unexpected default metrics port: %d", cfg.MetricsPort)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
rpcUrl: "https://rpc.example.com"
contractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
account: "0x1111111111111111111111111111111111111111"
gateways:
  - "https://gateway.pinata.cloud/ipfs/"
  - "https://ipfs.io/ipfs/"
refreshInterval: "45s"
metricsPort: 9300
tracing: true
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-deedsync.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RPCURL != "https://rpc.example.com" {
		t.Errorf("unexpected RPC URL: %s", cfg.RPCURL)
	}
	if cfg.ContractAddress != "0x5FbDB2315678afecb367f032d93F642f64180aa3" {
		t.Errorf("unexpected contract address: %s", cfg.ContractAddress)
	}
	expectedGateways := []string{
		"https://gateway.pinata.cloud/ipfs/",
		"https://ipfs.io/ipfs/",
	}
	if !reflect.DeepEqual(cfg.Gateways, expectedGateways) {
		t.Errorf("unexpected gateways: %v", cfg.Gateways)
	}
	if cfg.RefreshInterval != "45s" {
		t.Errorf("unexpected refresh interval: %s", cfg.RefreshInterval)
	}
	if !cfg.Tracing {
		t.Error("expected tracing enabled")
	}
	// Unset values keep their defaults
	if cfg.FetchTimeout != "10s" {
		t.Errorf("unexpected fetch timeout: %s", cfg.FetchTimeout)
	}
}

func TestLoadConfigEnvOverlay(t *testing.T) {
	resetGlobalConfig()
	t.Setenv("DEEDSYNC_RPC_URL", "https://env.example.com")
	t.Setenv("DEEDSYNC_METRICS_PORT", "9400")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RPCURL != "https://env.example.com" {
		t.Errorf("environment did not override RPC URL: %s", cfg.RPCURL)
	}
	if cfg.MetricsPort != 9400 {
		t.Errorf("environment did not override metrics port: %d", cfg.MetricsPort)
	}
}
