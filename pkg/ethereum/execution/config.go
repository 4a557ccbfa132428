package execution

import "fmt"

// Config is the configuration for a single execution node connection.
type Config struct {
	// Name is a human-readable identifier for the node, used in logs and metrics.
	Name string `yaml:"name" default:"execution"`
	// NodeAddress is the JSON-RPC endpoint of the execution node.
	NodeAddress string `yaml:"nodeAddress"`
	// NodeHeaders are extra HTTP headers sent with every RPC request.
	NodeHeaders map[string]string `yaml:"nodeHeaders"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.NodeAddress == "" {
		return fmt.Errorf("nodeAddress is required")
	}

	return nil
}
