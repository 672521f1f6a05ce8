package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imamik/autoinstall/internal/util/naming"
)

// LookupFunc looks up an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration from the YAML file at path (optional) and
// the environment, then validates it. Environment variables win over the file.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := defaults()

	if path != "" {
		// #nosec G304 - path comes from the command line
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
		}
	}

	applyEnv(cfg, lookup)

	if cfg.Session.LogPath == "" {
		cfg.Session.LogPath = naming.DefaultLogPath(time.Now())
	}
	cfg.Timeouts = LoadTimeouts(lookup)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ClusterProfile:        DefaultClusterProfile,
		DisableAWSProdProfile: DefaultAWSProdProfile,
		RSDomain:              DefaultRSDomain,
		AWSRoles:              DefaultAWSRoles,
		AdminEmail:            DefaultAdminEmail,
		Features: Features{
			CacheRegistry: true,
		},
		Session: SessionConfig{
			InstallerCommand: DefaultInstallerCommand,
		},
	}
}

// applyEnv overlays environment variables onto cfg. Empty string variables
// are treated as unset.
func applyEnv(cfg *Config, lookup LookupFunc) {
	strs := map[string]*string{
		"CLUSTER_NAME":        &cfg.ClusterName,
		"CLUSTER_DOMAIN":      &cfg.ClusterDomain,
		"AWS_REGION":          &cfg.AWSRegion,
		"AWS_ACCOUNT":         &cfg.AWSAccount,
		"STATE_BUCKET_PREFIX": &cfg.StateBucketPrefix,
		"STATE_PATH":          &cfg.StatePath,

		"CLUSTER_PROFILE":          &cfg.ClusterProfile,
		"DISABLE_AWS_PROD_PROFILE": &cfg.DisableAWSProdProfile,
		"AWS_ROLES":                &cfg.AWSRoles,
		"AUTOINSTALL_ADMIN_EMAIL":  &cfg.AdminEmail,
		"RS_REFRESH_TOKEN":         &cfg.RSRefreshToken,
		"RS_DOMAIN":                &cfg.RSDomain,

		"http_proxy":  &cfg.Proxy.HTTP,
		"https_proxy": &cfg.Proxy.HTTPS,
		"no_proxy":    &cfg.Proxy.No,
		"socks_proxy": &cfg.Proxy.Socks,

		"AUTOINSTALL_VPC_ID":      &cfg.Network.VPCID,
		"AUTOINSTALL_JUMPHOST_IP": &cfg.Network.JumphostIP,
		"AUTOINSTALL_CIDR_BLOCK":  &cfg.Network.CIDRBlock,

		"USE_TEST_PROVISION_CONFIG":          &cfg.Overrides.ProvisionConfig,
		"USE_TEST_PROVISION_CONFIG_TFVAR":    &cfg.Overrides.ProvisionConfigTfvar,
		"AUTOINSTALL_REGISTRY_PROFILE":       &cfg.Overrides.RegistryProfile,
		"AUTOINSTALL_JUMPHOST_SSHKEY":        &cfg.Overrides.JumphostSSHKey,
		"AUTOINSTALL_INTERNAL_PROXY_PROFILE": &cfg.Overrides.InternalProxyProfile,
		"AUTOINSTALL_INTERNAL_HARBOR_CERT":   &cfg.Overrides.InternalHarborCert,

		"AUTOINSTALL_COMMAND":  &cfg.Session.InstallerCommand,
		"AUTO_INSTALL_LOGPATH": &cfg.Session.LogPath,

		"AUTOINSTALL_ARTIFACT_BUCKET":   &cfg.Artifacts.Bucket,
		"AUTOINSTALL_ARTIFACT_ENDPOINT": &cfg.Artifacts.Endpoint,
		"AUTOINSTALL_METRICS_TEXTFILE":  &cfg.Artifacts.MetricsTextfile,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"AUTOINSTALL_INTERNAL":     &cfg.Network.Internal,
		"DISABLE_AUTOCERT":         &cfg.Features.DisableAutoCert,
		"ENABLE_ACCOUNT_INIT":      &cfg.Features.AccountInit,
		"ENABLE_ACCOUNT_RESET":     &cfg.Features.AccountReset,
		"ENABLE_CACHE_REGISTRY":    &cfg.Features.CacheRegistry,
		"ENABLE_TIMING_DATA":       &cfg.Features.TimingData,
		"ENABLE_INTERACTIVE_DEBUG": &cfg.Features.InteractiveDebug,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok && v != "" {
			*dst = parseToggle(v)
		}
	}
}

// parseToggle treats "true" in any case as on and everything else as off.
func parseToggle(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
