package config

import (
	"fmt"
	"net/netip"
	"os"
)

// Validate checks the configuration for missing settings and unsupported
// combinations. It returns the first problem found.
func (c *Config) Validate() error {
	// Required fields
	required := []struct {
		env   string
		value string
	}{
		{"CLUSTER_NAME", c.ClusterName},
		{"CLUSTER_DOMAIN", c.ClusterDomain},
		{"AWS_REGION", c.AWSRegion},
		{"AWS_ACCOUNT", c.AWSAccount},
		{"STATE_BUCKET_PREFIX", c.StateBucketPrefix},
		{"STATE_PATH", c.StatePath},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s environment variable is required", r.env)
		}
	}

	if info, err := os.Stat(c.StatePath); err == nil && !info.IsDir() {
		return fmt.Errorf("STATE_PATH %q is not a directory", c.StatePath)
	}

	if c.Session.InstallerCommand == "" {
		return fmt.Errorf("installer command is required")
	}

	if err := c.validateNetwork(); err != nil {
		return fmt.Errorf("network validation failed: %w", err)
	}

	if err := c.validateProxy(); err != nil {
		return fmt.Errorf("proxy validation failed: %w", err)
	}

	if c.Timeouts != nil {
		if err := c.Timeouts.Validate(); err != nil {
			return fmt.Errorf("timeout validation failed: %w", err)
		}
	}

	return nil
}

func (c *Config) validateNetwork() error {
	n := c.Network
	if n.Internal && !n.CustomVPC() {
		return fmt.Errorf("internal deployments require a custom VPC ID")
	}

	if n.CustomVPC() {
		if n.JumphostIP == "" {
			return fmt.Errorf("custom VPC deployments require a jumphost IP address")
		}
		if n.CIDRBlock == "" {
			return fmt.Errorf("custom VPC deployments require a CIDR block")
		}
		if _, err := netip.ParseAddr(n.JumphostIP); err != nil {
			return fmt.Errorf("invalid jumphost IP %q: %w", n.JumphostIP, err)
		}
		if _, err := netip.ParsePrefix(n.CIDRBlock); err != nil {
			return fmt.Errorf("invalid CIDR block %q: %w", n.CIDRBlock, err)
		}
		if c.Overrides.JumphostSSHKey == "" {
			return fmt.Errorf("custom VPC deployments require a valid jumphost SSH key")
		}
	}

	if n.Internal && c.Features.AccountInit {
		return fmt.Errorf("account initialization is not supported for internal deployments")
	}
	return nil
}

func (c *Config) validateProxy() error {
	if c.Network.Internal {
		return nil
	}
	if c.Proxy.HTTPS != "" && c.Proxy.Socks == "" {
		return fmt.Errorf("the socks_proxy environment variable must be set in a proxied network environment")
	}
	return nil
}
