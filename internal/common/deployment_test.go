package common

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDeployment(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployment.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("Failed to write deployment file: %v", err)
	}
	return path
}

func TestLoadDeployment(t *testing.T) {
	path := writeDeployment(t, `
address: "0xabc123"
network: "base-sepolia"
min_confirmations: 6
`)

	deployment, err := LoadDeployment(path)
	if err != nil {
		t.Fatalf("LoadDeployment failed: %v", err)
	}
	if deployment.Address != "0xabc123" {
		t.Errorf("Expected address 0xabc123, got %s", deployment.Address)
	}
	if deployment.Network != "base-sepolia" {
		t.Errorf("Expected network base-sepolia, got %s", deployment.Network)
	}
	if deployment.MinConfirmations != 6 {
		t.Errorf("Expected 6 confirmations, got %d", deployment.MinConfirmations)
	}
}

func TestLoadDeployment_MissingAddress(t *testing.T) {
	path := writeDeployment(t, `
network: "base-sepolia"
min_confirmations: 6
`)

	if _, err := LoadDeployment(path); err == nil {
		t.Error("Expected error for missing address")
	}
}

func TestLoadDeployment_MissingFile(t *testing.T) {
	if _, err := LoadDeployment(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
