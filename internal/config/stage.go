package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/imamik/autoinstall/internal/util/naming"
)

// Staged records which override files were copied into the state directory.
// Each field holds the destination path, or is empty when nothing was staged.
type Staged struct {
	ProvisionConfig      string
	ProvisionConfigTfvar string
	RegistryProfile      string
	JumphostSSHKey       string
	InternalProxyProfile string
	InternalHarborCert   string
}

type stageItem struct {
	source   string
	name     string
	mode     os.FileMode
	validate func([]byte) error
	dest     *string
}

// Stage copies the configured override files into the state directory,
// creating it when needed. A missing or malformed source file is an error.
func Stage(cfg *Config) (Staged, error) {
	var staged Staged
	o := cfg.Overrides

	items := []stageItem{
		{o.ProvisionConfig, naming.ProvisionValues(cfg.AWSAccount, cfg.ClusterName), 0o644, nil, &staged.ProvisionConfig},
		{o.ProvisionConfigTfvar, naming.ProvisionTfvars(cfg.AWSAccount, cfg.ClusterName), 0o644, nil, &staged.ProvisionConfigTfvar},
		{o.RegistryProfile, naming.RegistryProfile(), 0o644, validateYAML, &staged.RegistryProfile},
		{o.JumphostSSHKey, naming.JumphostSSHKey(cfg.ClusterName), 0o600, validatePrivateKey, &staged.JumphostSSHKey},
		{o.InternalProxyProfile, naming.InternalProxyProfile(), 0o644, validateYAML, &staged.InternalProxyProfile},
		{o.InternalHarborCert, naming.InternalHarborCert(), 0o644, nil, &staged.InternalHarborCert},
	}

	for _, item := range items {
		if item.source == "" {
			continue
		}
		dest, err := stageFile(cfg.StatePath, item)
		if err != nil {
			return staged, err
		}
		*item.dest = dest
	}
	return staged, nil
}

func stageFile(stateDir string, item stageItem) (string, error) {
	info, err := os.Stat(item.source)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("file %q not found", item.source)
	}

	// #nosec G304 - source paths come from operator configuration
	data, err := os.ReadFile(item.source)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", item.source, err)
	}
	if item.validate != nil {
		if err := item.validate(data); err != nil {
			return "", fmt.Errorf("invalid %s: %w", item.source, err)
		}
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}

	dest := filepath.Join(stateDir, item.name)
	if err := copyFile(item.source, dest, item.mode); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", item.name, err)
	}
	return dest, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	// #nosec G304
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	// #nosec G304
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func validateYAML(data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("not valid YAML: %w", err)
	}
	return nil
}

// validatePrivateKey accepts any parseable private key, including
// passphrase-protected ones.
func validatePrivateKey(data []byte) error {
	_, err := ssh.ParseRawPrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if err == nil || errors.As(err, &missing) {
		return nil
	}
	return fmt.Errorf("not a valid SSH private key: %w", err)
}
