package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/user/portage/internal/model"
)

// ftpClient wraps a single FTP or FTPS control connection.
type ftpClient struct {
	conn     *ftp.ServerConn
	features Features
}

func dialFTP(ctx context.Context, cfg model.ConnectionConfig, timeout time.Duration) (Client, error) {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	}
	if cfg.Protocol == model.ProtocolFTPS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: true,
		}))
	}
	conn, err := ftp.Dial(cfg.Addr(), opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		conn.Quit()
		var proto *textproto.Error
		if errors.As(err, &proto) && proto.Code == ftp.StatusNotLoggedIn {
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return nil, fmt.Errorf("ftp login: %w", err)
	}
	return &ftpClient{
		conn: conn,
		features: Features{
			PassiveListing: true,
			MultiSession:   true,
		},
	}, nil
}

func (c *ftpClient) List(ctx context.Context, dir string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := c.conn.List(dir)
	if err != nil {
		return nil, wrapFTPErr(err)
	}
	var infos []FileInfo
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		infos = append(infos, FileInfo{
			Name:    e.Name,
			Path:    path.Join(dir, e.Name),
			Size:    int64(e.Size),
			IsDir:   e.Type == ftp.EntryTypeFolder,
			IsLink:  e.Type == ftp.EntryTypeLink,
			ModTime: e.Time,
		})
	}
	return infos, nil
}

func (c *ftpClient) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.conn.Retr(p)
	if err != nil {
		return nil, wrapFTPErr(err)
	}
	defer resp.Close()
	return io.ReadAll(resp)
}

func (c *ftpClient) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapFTPErr(c.conn.Stor(p, bytes.NewReader(data)))
}

func (c *ftpClient) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapFTPErr(c.conn.Delete(p))
}

func (c *ftpClient) Mkdir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapFTPErr(c.conn.MakeDir(p))
}

func (c *ftpClient) Features() Features { return c.features }

func (c *ftpClient) Close() error { return c.conn.Quit() }

func wrapFTPErr(err error) error {
	if err == nil {
		return nil
	}
	var proto *textproto.Error
	if errors.As(err, &proto) && proto.Code == ftp.StatusFileUnavailable {
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}
