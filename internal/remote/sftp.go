package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/user/portage/internal/model"
)

// sftpClient speaks SFTP over an SSH connection.
type sftpClient struct {
	conn     *ssh.Client
	sftp     *sftp.Client
	features Features
}

func sshClientConfig(cfg model.ConnectionConfig, timeout time.Duration) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", cfg.KeyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	return &ssh.ClientConfig{
		User: cfg.Username,
		Auth: methods,
		// A planning tool that only has credentials cannot pin host
		// keys ahead of time.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

func dialSSH(ctx context.Context, cfg model.ConnectionConfig, timeout time.Duration) (*ssh.Client, error) {
	sshCfg, err := sshClientConfig(cfg, timeout)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: timeout}
	raw, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, err
	}
	conn, chans, reqs, err := ssh.NewClientConn(raw, cfg.Addr(), sshCfg)
	if err != nil {
		raw.Close()
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "password") {
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return nil, err
	}
	return ssh.NewClient(conn, chans, reqs), nil
}

func dialSFTP(ctx context.Context, cfg model.ConnectionConfig, timeout time.Duration) (Client, error) {
	conn, err := dialSSH(ctx, cfg, timeout)
	if err != nil {
		return nil, err
	}
	sc, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp subsystem: %w", err)
	}
	c := &sftpClient{conn: conn, sftp: sc}
	c.features = Features{
		Shell:         probeShell(conn),
		MultiSession:  true,
		ServerVersion: string(conn.ServerVersion()),
	}
	return c, nil
}

// probeShell checks whether the server grants exec sessions. SFTP-only
// accounts (chrooted, ForceCommand internal-sftp) will refuse.
func probeShell(conn *ssh.Client) bool {
	sess, err := conn.NewSession()
	if err != nil {
		return false
	}
	defer sess.Close()
	return sess.Run("true") == nil
}

func (c *sftpClient) List(ctx context.Context, dir string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := c.sftp.ReadDir(dir)
	if err != nil {
		return nil, wrapPermission(err)
	}
	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, FileInfo{
			Name:    e.Name(),
			Path:    path.Join(dir, e.Name()),
			Size:    e.Size(),
			IsDir:   e.IsDir(),
			IsLink:  e.Mode()&os.ModeSymlink != 0,
			ModTime: e.ModTime(),
		})
	}
	return infos, nil
}

func (c *sftpClient) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := c.sftp.Open(p)
	if err != nil {
		return nil, wrapPermission(err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, stat.Size())
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

func (c *sftpClient) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := c.sftp.Create(p)
	if err != nil {
		return wrapPermission(err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *sftpClient) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapPermission(c.sftp.Remove(p))
}

func (c *sftpClient) Mkdir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapPermission(c.sftp.MkdirAll(p))
}

func (c *sftpClient) Features() Features { return c.features }

func (c *sftpClient) Close() error {
	c.sftp.Close()
	return c.conn.Close()
}

func wrapPermission(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrPermission) || strings.Contains(err.Error(), "permission denied") {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}
