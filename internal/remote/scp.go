package remote

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/user/portage/internal/model"
)

// scpClient drives a plain SSH account without the SFTP subsystem.
// Every operation runs a short remote command, so it works against
// minimal sshd setups where SFTP is disabled.
type scpClient struct {
	conn     *ssh.Client
	features Features
}

func dialSCP(ctx context.Context, cfg model.ConnectionConfig, timeout time.Duration) (Client, error) {
	conn, err := dialSSH(ctx, cfg, timeout)
	if err != nil {
		return nil, err
	}
	c := &scpClient{conn: conn}
	if !probeShell(conn) {
		conn.Close()
		return nil, fmt.Errorf("scp requires an exec-capable ssh account")
	}
	c.features = Features{
		Shell:         true,
		ServerVersion: string(conn.ServerVersion()),
	}
	return c, nil
}

func (c *scpClient) run(ctx context.Context, cmd string, stdin []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := c.conn.NewSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	if stdin != nil {
		sess.Stdin = bytes.NewReader(stdin)
	}
	out, err := sess.Output(cmd)
	if err != nil {
		if strings.Contains(err.Error(), "Permission denied") {
			return nil, fmt.Errorf("%w: %s", ErrPermission, cmd)
		}
		return nil, fmt.Errorf("remote %q: %w", cmd, err)
	}
	return out, nil
}

// List parses `ls -lA` output. Only the fields the scanner needs are
// extracted; unparseable lines are skipped.
func (c *scpClient) List(ctx context.Context, dir string) ([]FileInfo, error) {
	out, err := c.run(ctx, "ls -lA -- "+shellQuote(dir), nil)
	if err != nil {
		return nil, err
	}
	var infos []FileInfo
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 9 || strings.HasPrefix(line, "total") {
			continue
		}
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}
		name := strings.Join(fields[8:], " ")
		if i := strings.Index(name, " -> "); i >= 0 {
			name = name[:i]
		}
		infos = append(infos, FileInfo{
			Name:   name,
			Path:   path.Join(dir, name),
			Size:   size,
			IsDir:  line[0] == 'd',
			IsLink: line[0] == 'l',
		})
	}
	return infos, nil
}

func (c *scpClient) Read(ctx context.Context, p string) ([]byte, error) {
	return c.run(ctx, "cat -- "+shellQuote(p), nil)
}

func (c *scpClient) Write(ctx context.Context, p string, data []byte) error {
	_, err := c.run(ctx, "cat > "+shellQuote(p), data)
	return err
}

func (c *scpClient) Delete(ctx context.Context, p string) error {
	_, err := c.run(ctx, "rm -f -- "+shellQuote(p), nil)
	return err
}

func (c *scpClient) Mkdir(ctx context.Context, p string) error {
	_, err := c.run(ctx, "mkdir -p -- "+shellQuote(p), nil)
	return err
}

func (c *scpClient) Features() Features { return c.features }

func (c *scpClient) Close() error { return c.conn.Close() }

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
