package sftp

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func testHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func newHostKeyAdapter(t *testing.T, opts Options) *Adapter {
	t.Helper()
	opts.Host = "files.example.com"
	a, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestMaterializeKnownHosts(t *testing.T) {
	key := testHostKey(t)
	line := knownhosts.Line([]string{"files.example.com"}, key)
	a := newHostKeyAdapter(t, Options{KnownHostKeys: line})

	file, err := a.materializeKnownHosts(a.opts.KnownHostKeys)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(file)

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "files.example.com") {
		t.Errorf("materialized file content = %q", data)
	}
}

func TestEnsureKnownHostsFileStrictRequiresExisting(t *testing.T) {
	a := newHostKeyAdapter(t, Options{HostKeyPolicy: hostKeyPolicyStrict})
	missing := filepath.Join(t.TempDir(), "known_hosts")
	if _, err := a.ensureKnownHostsFile(missing); err == nil {
		t.Error("strict policy accepted a missing known hosts file")
	}
}

func TestEnsureKnownHostsFileTOFUCreates(t *testing.T) {
	a := newHostKeyAdapter(t, Options{HostKeyPolicy: hostKeyPolicyTOFU})
	missing := filepath.Join(t.TempDir(), "nested", "known_hosts")
	got, err := a.ensureKnownHostsFile(missing)
	if err != nil {
		t.Fatal(err)
	}
	if got != missing {
		t.Errorf("path = %q", got)
	}
	if _, err := os.Stat(missing); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestKnownHostsPrecedence(t *testing.T) {
	key := testHostKey(t)
	inline := knownhosts.Line([]string{"inline.example.com"}, key)

	onDisk := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(onDisk, []byte(knownhosts.Line([]string{"file.example.com"}, key)+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	// Inline material wins over the file option.
	a := newHostKeyAdapter(t, Options{KnownHostKeys: inline, KnownHostsFile: onDisk})
	path, err := a.knownHostsPath()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(path)
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "inline.example.com") {
		t.Errorf("inline option did not win: %q", data)
	}

	// The file option wins over the environment.
	t.Setenv(knownHostKeysEnv, knownhosts.Line([]string{"env.example.com"}, key))
	a = newHostKeyAdapter(t, Options{KnownHostsFile: onDisk})
	path, err = a.knownHostsPath()
	if err != nil {
		t.Fatal(err)
	}
	if path != onDisk {
		t.Errorf("file option did not win over env: %q", path)
	}

	// The environment fills in when both options are empty.
	a = newHostKeyAdapter(t, Options{})
	path, err = a.knownHostsPath()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(path)
	data, _ = os.ReadFile(path)
	if !strings.Contains(string(data), "env.example.com") {
		t.Errorf("env material not used: %q", data)
	}
}

func TestHostKeyCallbackStrict(t *testing.T) {
	key := testHostKey(t)
	addr := &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 22}
	line := knownhosts.Line([]string{knownhosts.Normalize("files.example.com:22")}, key)

	a := newHostKeyAdapter(t, Options{HostKeyPolicy: hostKeyPolicyStrict, KnownHostKeys: line})
	cb, err := a.hostKeyCallback()
	if err != nil {
		t.Fatal(err)
	}
	if err := cb("files.example.com:22", addr, key); err != nil {
		t.Errorf("known host rejected: %v", err)
	}
	if err := cb("other.example.com:22", addr, key); err == nil {
		t.Error("unknown host accepted under strict policy")
	}
	if err := cb("files.example.com:22", addr, testHostKey(t)); err == nil {
		t.Error("changed host key accepted under strict policy")
	}
}

func TestHostKeyCallbackTOFU(t *testing.T) {
	key := testHostKey(t)
	addr := &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 22}
	file := filepath.Join(t.TempDir(), "known_hosts")

	a := newHostKeyAdapter(t, Options{HostKeyPolicy: hostKeyPolicyTOFU, KnownHostsFile: file})
	cb, err := a.hostKeyCallback()
	if err != nil {
		t.Fatal(err)
	}

	// First sight: accepted and recorded.
	if err := cb("files.example.com:22", addr, key); err != nil {
		t.Fatalf("first-seen host rejected: %v", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), key.Type()) {
		t.Errorf("host key not recorded: %q", data)
	}

	// A changed key for a recorded host is still rejected.
	a = newHostKeyAdapter(t, Options{HostKeyPolicy: hostKeyPolicyTOFU, KnownHostsFile: file})
	cb, err = a.hostKeyCallback()
	if err != nil {
		t.Fatal(err)
	}
	if err := cb("files.example.com:22", addr, testHostKey(t)); err == nil {
		t.Error("changed host key accepted under tofu policy")
	}
}

func TestHostKeyCallbackAuto(t *testing.T) {
	a := newHostKeyAdapter(t, Options{HostKeyPolicy: hostKeyPolicyAuto})
	cb, err := a.hostKeyCallback()
	if err != nil {
		t.Fatal(err)
	}
	addr := &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 22}
	if err := cb("anything:22", addr, testHostKey(t)); err != nil {
		t.Errorf("auto policy rejected a host: %v", err)
	}
}
