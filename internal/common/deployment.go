package common

import (
	"fmt"
	"os"
	"path/filepath"

	"collateral-refund-go/internal/models"

	"gopkg.in/yaml.v2"
)

// LoadDeployment reads the watched deployment descriptor: the custodial
// deposit address and the confirmation policy for its network.
func LoadDeployment(deploymentFile string) (*models.Deployment, error) {
	var deploymentPath string
	if filepath.IsAbs(deploymentFile) {
		deploymentPath = deploymentFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		deploymentPath = filepath.Join(wd, deploymentFile)
	}

	data, err := os.ReadFile(deploymentPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", deploymentFile, err)
	}

	var deployment models.Deployment
	if err := yaml.Unmarshal(data, &deployment); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", deploymentFile, err)
	}

	if deployment.Address == "" {
		return nil, fmt.Errorf("%s missing deposit address", deploymentFile)
	}
	if deployment.Network == "" {
		return nil, fmt.Errorf("%s missing network", deploymentFile)
	}
	if deployment.MinConfirmations < 0 {
		return nil, fmt.Errorf("%s min_confirmations cannot be negative", deploymentFile)
	}

	return &deployment, nil
}
