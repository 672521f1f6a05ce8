package naming

import (
	"fmt"
	"path"
	"time"
)

// SaveDir is the state directory as seen from the installer container's home.
const SaveDir = "pod-configs/SAVEME"

// Naming functions for files staged into the state directory.

func ProvisionValues(account, cluster string) string {
	return fmt.Sprintf("%s-%s-values.sh", account, cluster)
}

func ProvisionTfvars(account, cluster string) string {
	return fmt.Sprintf("%s-%s-values.tfvar", account, cluster)
}

func RegistryProfile() string {
	return "artifact-rs-profile.yaml"
}

func JumphostSSHKey(cluster string) string {
	return fmt.Sprintf("jumphost_sshkey_%s", cluster)
}

func InternalProxyProfile() string {
	return "proxy-internal.yaml"
}

func InternalHarborCert() string {
	return "internal-harbor-ca.crt"
}

// InContainer returns the container-relative path of a staged file.
func InContainer(name string) string {
	return path.Join(SaveDir, name)
}

// DefaultLogPath returns the transcript path used when none is configured.
func DefaultLogPath(now time.Time) string {
	return fmt.Sprintf("../install-%s.log", now.Format("20060102-150405"))
}

// ArtifactKey returns the object key a run's transcript is uploaded under.
func ArtifactKey(statePrefix, cluster, mode, runID string) string {
	return path.Join(statePrefix, cluster, fmt.Sprintf("%s-%s.log", mode, runID))
}
