package config

// Config holds the settings of a run.
type Config struct {
	ClusterName       string `yaml:"cluster_name"`
	ClusterDomain     string `yaml:"cluster_domain"`
	AWSRegion         string `yaml:"aws_region"`
	AWSAccount        string `yaml:"aws_account"`
	StateBucketPrefix string `yaml:"state_bucket_prefix"`
	StatePath         string `yaml:"state_path"`

	ClusterProfile        string `yaml:"cluster_profile"`
	DisableAWSProdProfile string `yaml:"disable_aws_prod_profile"`
	AWSRoles              string `yaml:"aws_roles"`
	AdminEmail            string `yaml:"admin_email"`

	// Release service settings used to authenticate artifact pulls.
	RSRefreshToken string `yaml:"rs_refresh_token"`
	RSDomain       string `yaml:"rs_domain"`

	Proxy     ProxyConfig    `yaml:"proxy"`
	Network   NetworkConfig  `yaml:"network"`
	Overrides OverrideFiles  `yaml:"overrides"`
	Features  Features       `yaml:"features"`
	Session   SessionConfig  `yaml:"session"`
	Artifacts ArtifactConfig `yaml:"artifacts"`

	Timeouts *Timeouts `yaml:"-"`
}

// ProxyConfig holds the proxies of the install environment.
type ProxyConfig struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
	No    string `yaml:"no"`
	Socks string `yaml:"socks"`
}

// NetworkConfig describes deployments into an existing VPC.
type NetworkConfig struct {
	Internal   bool   `yaml:"internal"`
	VPCID      string `yaml:"vpc_id"`
	JumphostIP string `yaml:"jumphost_ip"`
	CIDRBlock  string `yaml:"cidr_block"`
}

// CustomVPC reports whether the cluster is deployed into an existing VPC.
func (n NetworkConfig) CustomVPC() bool {
	return n.VPCID != ""
}

// OverrideFiles are source paths of files staged into the state directory.
type OverrideFiles struct {
	ProvisionConfig      string `yaml:"provision_config"`
	ProvisionConfigTfvar string `yaml:"provision_config_tfvar"`
	RegistryProfile      string `yaml:"registry_profile"`
	JumphostSSHKey       string `yaml:"jumphost_sshkey"`
	InternalProxyProfile string `yaml:"internal_proxy_profile"`
	InternalHarborCert   string `yaml:"internal_harbor_cert"`
}

// Features are the on/off switches of a run.
type Features struct {
	DisableAutoCert  bool `yaml:"disable_autocert"`
	AccountInit      bool `yaml:"account_init"`
	AccountReset     bool `yaml:"account_reset"`
	CacheRegistry    bool `yaml:"cache_registry"`
	TimingData       bool `yaml:"timing_data"`
	InteractiveDebug bool `yaml:"interactive_debug"`
}

// SessionConfig configures the installer session.
type SessionConfig struct {
	InstallerCommand string `yaml:"installer_command"`
	LogPath          string `yaml:"log_path"`
}

// ArtifactConfig configures where run artifacts are published.
type ArtifactConfig struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	MetricsTextfile string `yaml:"metrics_textfile"`
}
