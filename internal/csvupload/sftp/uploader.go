// Package sftp delivers queued CSV uploads to the partner SFTP server.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/csvupload/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	ErrHostRequired = errors.New("sftp host is required")
	ErrUserRequired = errors.New("sftp user is required")
	ErrNoAuthMethod = errors.New("sftp password or private key is required")
)

// Uploader opens one SSH session per upload. Uploads are infrequent and a
// short-lived connection avoids holding a session open between scheduler runs.
type Uploader struct {
	addr      string
	sshConfig *ssh.ClientConfig
	timeout   time.Duration
	log       *zap.Logger
}

var _ domain.Uploader = (*Uploader)(nil)

func NewUploader(cfg config.SFTPConfig, log *zap.Logger) (*Uploader, error) {
	if cfg.Host == "" {
		return nil, ErrHostRequired
	}
	if cfg.User == "" {
		return nil, ErrUserRequired
	}

	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	} else {
		log.Warn("sftp known_hosts not configured, host key is not verified")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	port := cfg.Port
	if port <= 0 {
		port = 22
	}

	return &Uploader{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		sshConfig: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
		timeout: timeout,
		log:     log.Named("csvupload.sftp"),
	}, nil
}

func authMethods(cfg config.SFTPConfig) ([]ssh.AuthMethod, error) {
	methods := make([]ssh.AuthMethod, 0, 2)
	if cfg.PrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, ErrNoAuthMethod
	}
	return methods, nil
}

func (u *Uploader) Upload(ctx context.Context, remotePath string, content []byte) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	dialer := net.Dialer{Timeout: u.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", u.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, u.addr, u.sshConfig)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp session: %w", err)
	}
	defer sc.Close()

	if err := sc.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("mkdir %s: %w", path.Dir(remotePath), err)
	}

	f, err := sc.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open %s: %w", remotePath, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", remotePath, err)
	}

	u.log.Debug("file uploaded", zap.String("remote_path", remotePath), zap.Int("bytes", len(content)))
	return nil
}
