package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/bryanwahyu/medcoder/internal/domain/deid"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	KnownHostsPath string
	Root           string
	DialTimeout    time.Duration
}

// Client implements deid.FileStore. Each call opens its own SSH connection and
// SFTP session and closes both before returning.
type Client struct {
	cfg  Config
	ssh  *ssh.ClientConfig
	addr string
}

var _ deid.FileStore = (*Client)(nil)

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}

	var auth []ssh.AuthMethod
	if cfg.PrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("sftp: no password or private key configured")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKey = cb
	} else {
		log.Warn().Str("host", cfg.Host).Msg("sftp known_hosts_path not set; host key is not verified")
	}

	return &Client{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		ssh: &ssh.ClientConfig{
			User:            cfg.Username,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         cfg.DialTimeout,
		},
	}, nil
}

// Root is the remote base directory every subdir is resolved against.
func (c *Client) Root() string { return c.cfg.Root }

// Upload puts localPath at {root}/{remoteSubdir}/{base(localPath)}, creating the
// directory when it does not exist yet, and returns the remote path.
func (c *Client) Upload(ctx context.Context, localPath, remoteSubdir string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", pipeline.New(pipeline.ErrMissingArtifact, fmt.Errorf("open %s: %w", localPath, err))
	}
	defer src.Close()

	client, done, err := c.session(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	dir := path.Join(c.cfg.Root, remoteSubdir)
	if _, err := client.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", c.opError(ctx, "stat "+dir, err)
		}
		if err := client.MkdirAll(dir); err != nil {
			return "", c.opError(ctx, "mkdir "+dir, err)
		}
	}

	remote := path.Join(dir, filepath.Base(localPath))
	dst, err := client.Create(remote)
	if err != nil {
		return "", c.opError(ctx, "create "+remote, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", c.opError(ctx, "put "+remote, err)
	}
	if err := dst.Close(); err != nil {
		return "", c.opError(ctx, "put "+remote, err)
	}
	return remote, nil
}

// Download fetches remotePath into localDest, creating the local directory.
func (c *Client) Download(ctx context.Context, remotePath, localDest string) error {
	if err := os.MkdirAll(filepath.Dir(localDest), 0o700); err != nil {
		return pipeline.New(pipeline.ErrTransport, fmt.Errorf("prepare %s: %w", localDest, err))
	}

	client, done, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer done()

	src, err := client.Open(remotePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return pipeline.New(pipeline.ErrMissingArtifact, fmt.Errorf("remote %s: %w", remotePath, err))
		}
		return c.opError(ctx, "open "+remotePath, err)
	}
	defer src.Close()

	dst, err := os.Create(localDest)
	if err != nil {
		return pipeline.New(pipeline.ErrTransport, fmt.Errorf("create %s: %w", localDest, err))
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(localDest)
		return c.opError(ctx, "get "+remotePath, err)
	}
	return dst.Close()
}

// Ping opens a session and stats the root directory.
func (c *Client) Ping(ctx context.Context) error {
	client, done, err := c.session(ctx)
	if err != nil {
		return err
	}
	defer done()
	if _, err := client.Stat(c.cfg.Root); err != nil {
		return c.opError(ctx, "stat "+c.cfg.Root, err)
	}
	return nil
}

func (c *Client) session(ctx context.Context) (*sftp.Client, func(), error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, nil, pipeline.Temporary(pipeline.ErrTransport, fmt.Errorf("dial %s: %w", c.addr, err))
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	_ = conn.SetDeadline(time.Now().Add(c.cfg.DialTimeout))
	sc, chans, reqs, err := ssh.NewClientConn(conn, c.addr, c.ssh)
	if err != nil {
		stop()
		conn.Close()
		return nil, nil, handshakeError(ctx, c.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(sc, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		stop()
		sshClient.Close()
		return nil, nil, pipeline.Temporary(pipeline.ErrTransport, fmt.Errorf("start sftp subsystem: %w", err))
	}
	return client, func() {
		client.Close()
		sshClient.Close()
		stop()
	}, nil
}

func handshakeError(ctx context.Context, addr string, err error) error {
	if ctx.Err() != nil {
		return pipeline.New(pipeline.ErrTransport, fmt.Errorf("ssh %s: %w", addr, ctx.Err()))
	}
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	msg := err.Error()
	if errors.As(err, &keyErr) || errors.As(err, &revoked) ||
		strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "knownhosts:") {
		return pipeline.New(pipeline.ErrAuth, fmt.Errorf("ssh %s: %w", addr, err))
	}
	return pipeline.Temporary(pipeline.ErrTransport, fmt.Errorf("ssh %s: %w", addr, err))
}

// opError classifies a failed remote operation. Server status replies are final;
// anything else means the session broke and is worth retrying.
func (c *Client) opError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return pipeline.New(pipeline.ErrTransport, fmt.Errorf("%s: %w", op, ctx.Err()))
	}
	var status *sftp.StatusError
	if errors.As(err, &status) || errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrNotExist) {
		return pipeline.New(pipeline.ErrTransport, fmt.Errorf("%s: %w", op, err))
	}
	return pipeline.Temporary(pipeline.ErrTransport, fmt.Errorf("%s: %w", op, err))
}
