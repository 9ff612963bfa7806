package sftp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Host key verification policies.
const (
	hostKeyPolicyStrict = "strict"
	hostKeyPolicyTOFU   = "tofu"
	hostKeyPolicyAuto   = "auto"
)

// knownHostKeysEnv supplies inline known_hosts material when neither
// the known_host_keys nor the known_hosts_file option is set.
const knownHostKeysEnv = "STOREKIT_SFTP_KNOWN_HOST_KEYS"

func (a *Adapter) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if a.opts.HostKeyPolicy == hostKeyPolicyAuto {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-in policy
	}

	file, err := a.knownHostsPath()
	if err != nil {
		return nil, err
	}
	base, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("cannot load known hosts from %s: %w", file, err)
	}
	if a.opts.HostKeyPolicy == hostKeyPolicyStrict {
		return base, nil
	}

	// Trust on first use: accept and record a host we have never
	// seen; still reject a host whose recorded key changed.
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := base(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return appendKnownHost(file, hostname, key)
		}
		return err
	}, nil
}

// knownHostsPath resolves the known-hosts material by precedence:
// inline option, file option, environment, then ~/.ssh/known_hosts.
// Inline material is written to a private temp file so the knownhosts
// parser can read it.
func (a *Adapter) knownHostsPath() (string, error) {
	if a.opts.KnownHostKeys != "" {
		return a.materializeKnownHosts(a.opts.KnownHostKeys)
	}
	if a.opts.KnownHostsFile != "" {
		return a.ensureKnownHostsFile(a.opts.KnownHostsFile)
	}
	if env := os.Getenv(knownHostKeysEnv); env != "" {
		return a.materializeKnownHosts(env)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve known hosts location: %w", err)
	}
	return a.ensureKnownHostsFile(filepath.Join(home, ".ssh", "known_hosts"))
}

func (a *Adapter) materializeKnownHosts(material string) (string, error) {
	f, err := os.CreateTemp("", "storekit-known-hosts-*")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(material + "\n"); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// ensureKnownHostsFile creates an empty file when missing, so the
// tofu policy has somewhere to record first-seen hosts.
func (a *Adapter) ensureKnownHostsFile(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if a.opts.HostKeyPolicy == hostKeyPolicyStrict {
		return "", fmt.Errorf("known hosts file %s does not exist", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	return path, f.Close()
}

func appendKnownHost(file, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("cannot record host key: %w", err)
	}
	defer f.Close()
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("cannot record host key: %w", err)
	}
	return nil
}
