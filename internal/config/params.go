package config

import (
	"fmt"
	"strings"
)

// Params are argument fragments derived from the configuration. Each field
// is either empty or a ready-to-use fragment of the installer command line.
type Params struct {
	AutoCert         string
	Internal         string
	EKSInternal      string
	VPC              string
	VPCJumphost      string
	SocksProxy       string
	InternalMakefile string
	CacheRegistry    string
	RefreshToken     string
	TokenEndpoint    string
}

// InternalRegistry reports whether the release service domain names the
// internal pre-integration registry.
func (c *Config) InternalRegistry() bool {
	return c.RSDomain != "" && strings.Contains(InternalRegistryHost, c.RSDomain)
}

// TokenEndpoint is the OAuth token endpoint of the release service.
func (c *Config) TokenEndpoint() string {
	return fmt.Sprintf("https://registry-rs.%s/oauth/token", c.RSDomain)
}

// Params derives the installer argument fragments.
func (c *Config) Params() Params {
	p := Params{
		TokenEndpoint: c.TokenEndpoint(),
	}

	if !c.Features.DisableAutoCert {
		p.AutoCert = "--auto-cert"
	}
	if c.Features.CacheRegistry {
		p.CacheRegistry = "--enable-cache-registry"
	}
	if c.RSRefreshToken != "" {
		p.RefreshToken = "--azuread-refresh-token " + c.RSRefreshToken
	}

	if c.Network.Internal {
		p.Internal = "--internal"

		makefile := []string{"USE_REPO_PROXY=true", "USE_INTERNAL_PROXY=true", "USE_TEST_ADMIN=true"}
		if c.InternalRegistry() {
			makefile = append(makefile, "USE_INTERNAL_REGISTRY_CERTS=true")
		}
		p.InternalMakefile = strings.Join(makefile, " ")

		eks := []string{"--eks-cluster-dns-ip " + EKSClusterDNSIP}
		if c.Proxy.HTTP != "" {
			eks = append(eks, "--eks-http-proxy "+c.Proxy.HTTP)
		}
		if c.Proxy.HTTPS != "" {
			eks = append(eks, "--eks-https-proxy "+c.Proxy.HTTPS)
		}
		if c.Proxy.No != "" {
			eks = append(eks, fmt.Sprintf("--eks-no-proxy %q", c.Proxy.No))
		}
		p.EKSInternal = strings.Join(eks, " ")
	}

	if c.Network.CustomVPC() {
		p.VPC = "--skip-apply-vpc --vpc-id " + c.Network.VPCID
		p.VPCJumphost = fmt.Sprintf("--jumphost-ip %s --cidr-block %s", c.Network.JumphostIP, c.Network.CIDRBlock)
	}

	if !c.Network.Internal && c.Proxy.HTTPS != "" {
		p.SocksProxy = "--socks-proxy " + c.Proxy.Socks
	}

	return p
}

// Join joins the non-empty fragments with single spaces.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
