package sftp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/gobeaver/storekit"
)

type sshConn = *ssh.Client

// ensureConnected returns a live SFTP client, dialing or re-dialing
// as needed. A cached session is probed with a cheap round trip
// first; a stale one (server restart, idle timeout, dropped NAT
// mapping) is discarded and replaced.
func (a *Adapter) ensureConnected(ctx context.Context) (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		if _, err := a.client.Getwd(); err == nil {
			return a.client, nil
		}
		a.logger.Warn("sftp session went stale, reconnecting", storekit.Fields{
			"host": a.opts.Host,
			"port": a.opts.Port,
		})
		a.closeLocked()
	}

	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	return a.client, nil
}

// connect dials SSH and opens the SFTP subsystem. Only the dial is
// retried, with exponential backoff and a capped attempt count;
// failures after a successful handshake surface immediately.
func (a *Adapter) connect(ctx context.Context) error {
	cfg, err := a.sshClientConfig()
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", a.opts.Host, a.opts.Port)

	var conn *ssh.Client
	dial := func() error {
		var dialErr error
		conn, dialErr = ssh.Dial("tcp", addr, cfg)
		return dialErr
	}
	notify := func(err error, next time.Duration) {
		a.logger.Warn("sftp dial failed, retrying", storekit.Fields{
			"host":  a.opts.Host,
			"port":  a.opts.Port,
			"error": err.Error(),
			"next":  next.String(),
		})
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(a.opts.ConnectRetries)),
		ctx,
	)
	if err := backoff.RetryNotify(dial, policy, notify); err != nil {
		return a.dialError(err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return &storekit.Error{
			Op:      "connect",
			Backend: backendName,
			Err:     fmt.Errorf("%w: opening sftp subsystem: %v", storekit.ErrUnavailable, err),
		}
	}

	a.ssh = conn
	a.client = client
	a.logger.Debug("sftp session established", storekit.Fields{
		"host": a.opts.Host,
		"port": a.opts.Port,
	})
	return nil
}

func (a *Adapter) dialError(err error) error {
	kind := storekit.ErrUnavailable
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") {
		kind = storekit.ErrPermission
	}
	if strings.Contains(msg, "key is unknown") || strings.Contains(msg, "key mismatch") {
		kind = storekit.ErrPermission
	}
	return &storekit.Error{
		Op:      "connect",
		Backend: backendName,
		Err:     fmt.Errorf("%w: %v", kind, err),
	}
}

func (a *Adapter) sshClientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if a.opts.PrivateKey != "" || a.opts.PrivateKeyFile != "" {
		signer, err := a.signer()
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if a.opts.Password != "" {
		auth = append(auth, ssh.Password(a.opts.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp backend requires a password or a private key")
	}

	hostKeyCallback, err := a.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            a.opts.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         time.Duration(a.opts.TimeoutSeconds) * time.Second,
	}, nil
}

func (a *Adapter) signer() (ssh.Signer, error) {
	material := a.opts.PrivateKey
	if material == "" {
		data, err := readKeyFile(a.opts.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		material = string(data)
	}
	signer, err := ssh.ParsePrivateKey([]byte(material))
	if err != nil {
		return nil, fmt.Errorf("cannot parse private key: %w", err)
	}
	return signer, nil
}

// Close implements storekit.Backend. Safe to call repeatedly; the
// next operation transparently reconnects.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeLocked()
	return nil
}

func (a *Adapter) closeLocked() {
	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
	if a.ssh != nil {
		a.ssh.Close()
		a.ssh = nil
	}
}
