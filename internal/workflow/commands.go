package workflow

import (
	"fmt"

	"github.com/imamik/autoinstall/internal/config"
	"github.com/imamik/autoinstall/internal/util/naming"
)

// Shell variables exported inside the installer container.
const (
	envClusterName = "$CLUSTER_NAME"
	envAWSRegion   = "$AWS_REGION"
)

const profilesDir = "~/edge-manageability-framework/config/profiles"

const (
	argoAuthEnvCommand = `echo "export ARGO_ADMIN_PASS=$(kubectl -n argocd get secret argocd-initial-admin-secret ` +
		`-o jsonpath="{.data.password}" | base64 -d)" > pod-configs/SAVEME/argoauth.env`
	argoAuthJSONCommand = `echo -e "{\n  "argoAuth": "$(kubectl -n argocd get secret argocd-initial-admin-secret ` +
		`-o jsonpath="{.data.password}" | base64 -d)"\n}" > pod-configs/SAVEME/argoauth.json`
)

// commands assembles installer command lines from the configuration.
type commands struct {
	cfg    *config.Config
	params config.Params
}

func newCommands(cfg *config.Config) commands {
	return commands{cfg: cfg, params: cfg.Params()}
}

// provision builds a provision.sh invocation shared by config, install,
// upgrade and uninstall. admin adds the role and token arguments.
func (c commands) provision(verb string, admin bool, afterAuto ...string) string {
	p := c.params
	parts := []string{
		"utils/provision.sh", verb,
		"--aws-account", c.cfg.AWSAccount,
		"--customer-state-prefix", c.cfg.StateBucketPrefix,
		"--environment", envClusterName,
		"--parent-domain", c.cfg.ClusterDomain,
		"--region", envAWSRegion,
		"--email", c.cfg.AdminEmail,
	}
	if admin {
		parts = append(parts, "--aws-admin-roles", c.cfg.AWSRoles, p.RefreshToken)
	}
	parts = append(parts,
		"--profile", c.cfg.ClusterProfile,
		p.AutoCert, p.Internal, p.VPC, p.VPCJumphost, p.SocksProxy,
		"--auto",
	)
	parts = append(parts, afterAuto...)
	return config.Join(parts...)
}

func (c commands) provisionConfig() string {
	return c.provision("config", false, c.params.CacheRegistry, c.params.EKSInternal)
}

func (c commands) provisionInstall() string {
	return c.provision("install", true, "--reduce-ns-ttl", c.params.CacheRegistry, c.params.EKSInternal)
}

func (c commands) provisionUpgrade() string {
	return c.provision("upgrade", true, c.params.CacheRegistry, c.params.EKSInternal)
}

func (c commands) provisionUninstall() string {
	return c.provision("uninstall", true, c.params.CacheRegistry)
}

func (c commands) account(action string) string {
	return config.Join(
		"utils/provision.sh account", action,
		"--aws-account", c.cfg.AWSAccount,
		"--region", envAWSRegion,
		"--customer-state-prefix", c.cfg.StateBucketPrefix,
		c.params.RefreshToken,
		"--azuread-token-endpoint", c.params.TokenEndpoint,
		"--auto",
	)
}

func (c commands) accountInit() string {
	return c.account("--new-aws-account")
}

func (c commands) accountReset() string {
	return c.account("--reset-aws-account")
}

func (c commands) configureCluster() string {
	return config.Join(fmt.Sprintf("DISABLE_AWS_PROD_PROFILE=%s ./configure-cluster.sh", c.cfg.DisableAWSProdProfile), c.params.VPCJumphost)
}

func (c commands) prepareUpgrade() string {
	return config.Join("./prepare-upgrade.sh", c.params.VPCJumphost)
}

func (c commands) updateCluster() string {
	return config.Join("./update-cluster.sh", c.params.VPCJumphost)
}

func (c commands) make(target string) string {
	return config.Join(c.params.InternalMakefile, "make", target)
}

func (c commands) fqdn() string {
	return c.cfg.ClusterName + "." + c.cfg.ClusterDomain
}

func timeCryer() string {
	return "./" + naming.InContainer("shellcryer.sh") + " &"
}

func copyRegistryProfile() string {
	return fmt.Sprintf("cp %s %s/artifact-rs-production-noauth.yaml", naming.InContainer(naming.RegistryProfile()), profilesDir)
}

func copyInternalProxyProfile() string {
	return fmt.Sprintf("cp %s %s/proxy-none.yaml", naming.InContainer(naming.InternalProxyProfile()), profilesDir)
}

func createRegistryCertsConfigMap() string {
	return "kubectl create configmap registry-certs -n argocd --from-file=registry-certs.crt=/root/" +
		naming.InContainer(naming.InternalHarborCert())
}
