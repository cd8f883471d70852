package sftp

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

const (
	testUser     = "ehr"
	testPassword = "s3cret"
)

type testServer struct {
	host    string
	port    int
	hostKey ssh.PublicKey
}

// startServer runs an SSH server with an in-memory SFTP subsystem. All
// connections share one filesystem.
func startServer(t *testing.T) testServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	handlers := sftp.InMemHandler()
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, cfg, handlers)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return testServer{host: addr.IP.String(), port: addr.Port, hostKey: signer.PublicKey()}
}

func serveConn(nc net.Conn, cfg *ssh.ServerConfig, handlers sftp.Handlers) {
	defer nc.Close()
	conn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			nch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := nch.Accept()
		if err != nil {
			return
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				req.Reply(ok, nil)
			}
		}(requests)
		go func() {
			server := sftp.NewRequestServer(ch, handlers)
			server.Serve()
			server.Close()
			ch.Close()
		}()
	}
}

func (s testServer) config() Config {
	return Config{
		Host:        s.host,
		Port:        s.port,
		Username:    testUser,
		Password:    testPassword,
		Root:        "/opt/files",
		DialTimeout: 5 * time.Second,
	}
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := NewClient(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	srv := startServer(t)
	c := newTestClient(t, srv.config())
	ctx := context.Background()

	content := bytes.Repeat([]byte("Patient has depression.\n\x00\xff"), 4096)
	local := filepath.Join(t.TempDir(), "01HZX.txt")
	if err := os.WriteFile(local, content, 0o600); err != nil {
		t.Fatal(err)
	}

	remote, err := c.Upload(ctx, local, "hipaa_input")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if remote != "/opt/files/hipaa_input/01HZX.txt" {
		t.Errorf("remote = %s", remote)
	}

	// second upload into the now-existing directory
	if _, err := c.Upload(ctx, local, "hipaa_input"); err != nil {
		t.Fatalf("Upload into existing dir: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "nested", "out.txt")
	if err := c.Download(ctx, remote, dest); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("round trip changed content: %d bytes in, %d out", len(content), len(got))
	}
}

func TestDownloadMissingFile(t *testing.T) {
	srv := startServer(t)
	c := newTestClient(t, srv.config())

	err := c.Download(context.Background(), "/opt/files/hipaa_output/none.txt", filepath.Join(t.TempDir(), "x.txt"))
	if !errors.Is(err, pipeline.ErrMissingArtifact) {
		t.Fatalf("err = %v", err)
	}
}

func TestWrongPasswordIsAuthError(t *testing.T) {
	srv := startServer(t)
	cfg := srv.config()
	cfg.Password = "wrong"
	c := newTestClient(t, cfg)

	local := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(local, []byte("x"), 0o600)
	_, err := c.Upload(context.Background(), local, "in")
	if !errors.Is(err, pipeline.ErrAuth) {
		t.Fatalf("err = %v", err)
	}
	if pipeline.IsTemporary(err) {
		t.Error("auth failures must not be retried")
	}
}

func TestKnownHosts(t *testing.T) {
	srv := startServer(t)
	addr := net.JoinHostPort(srv.host, strconv.Itoa(srv.port))

	good := filepath.Join(t.TempDir(), "known_hosts")
	os.WriteFile(good, []byte(knownhosts.Line([]string{addr}, srv.hostKey)+"\n"), 0o600)
	cfg := srv.config()
	cfg.KnownHostsPath = good
	local := filepath.Join(t.TempDir(), "a.txt")
	os.WriteFile(local, []byte("x"), 0o600)
	if _, err := newTestClient(t, cfg).Upload(context.Background(), local, "in"); err != nil {
		t.Fatalf("trusted host rejected: %v", err)
	}
	if err := newTestClient(t, cfg).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	otherSigner, _ := ssh.NewSignerFromKey(otherPriv)
	bad := filepath.Join(t.TempDir(), "known_hosts")
	os.WriteFile(bad, []byte(knownhosts.Line([]string{addr}, otherSigner.PublicKey())+"\n"), 0o600)
	cfg.KnownHostsPath = bad
	err := newTestClient(t, cfg).Ping(context.Background())
	if !errors.Is(err, pipeline.ErrAuth) {
		t.Fatalf("mismatched host key: err = %v", err)
	}
}

func TestConnectionRefusedIsTemporary(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := newTestClient(t, Config{Host: "127.0.0.1", Port: port, Username: "u", Password: "p", Root: "/", DialTimeout: time.Second})
	err := c.Download(context.Background(), "/a", filepath.Join(t.TempDir(), "a"))
	if !errors.Is(err, pipeline.ErrTransport) || !pipeline.IsTemporary(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewClientNeedsCredentials(t *testing.T) {
	if _, err := NewClient(Config{Host: "h", Username: "u"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without password or key")
	}
}
