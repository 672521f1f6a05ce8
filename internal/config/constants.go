package config

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultClusterProfile   = "default"
	DefaultAWSProdProfile   = "false"
	DefaultRSDomain         = "edgeorchestration.intel.com"
	DefaultAWSRoles         = "AWSReservedSSO_AWSAdministratorAccess"
	DefaultAdminEmail       = "builder@infra-host.com"
	DefaultInstallerCommand = "./start-orchestrator-install.sh"
)

// InternalRegistryHost is the release service registry of internal
// pre-integration environments.
const InternalRegistryHost = "registry-rs.edgeorchestration.intel.com"

// EKSClusterDNSIP is the cluster DNS address passed to internal EKS deployments.
const EKSClusterDNSIP = "172.20.0.10"
