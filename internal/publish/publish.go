// Package publish renders the public citations list and pushes it to the
// static site's FTP host. The list is the ledger verbatim: script.js on the
// site splices the quoted lines straight into a data array.
package publish

import (
	"bytes"
	"context"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/config"
	"github.com/slugwatch/citation-cli/internal/ledger"
	"github.com/slugwatch/citation-cli/internal/resilience"
)

// Render produces the citations list from the ledger.
func Render(ldg *ledger.Ledger) []byte {
	var buf bytes.Buffer
	for _, rec := range ldg.Records() {
		buf.WriteString(ledger.FormatLine(rec))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteLocal renders the list into dir/citations.txt for the status server
// to serve directly.
func WriteLocal(ldg *ledger.Ledger, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "publish: create %s", dir)
	}
	path := filepath.Join(dir, "citations.txt")
	if err := os.WriteFile(path, Render(ldg), 0o644); err != nil {
		return "", eris.Wrap(err, "publish: write citations list")
	}
	return path, nil
}

// Publisher uploads the citations list over FTP.
type Publisher struct {
	cfg     config.PublishConfig
	timeout time.Duration
	log     *zap.Logger
}

// New creates a Publisher.
func New(cfg config.PublishConfig) *Publisher {
	return &Publisher{
		cfg:     cfg,
		timeout: 30 * time.Second,
		log:     zap.L().With(zap.String("component", "publish")),
	}
}

// parseFTPURL extracts host (with port) and base directory from the
// configured FTP URL.
func parseFTPURL(rawURL string) (host string, dir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "publish: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("publish: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, u.Path, nil
}

// Upload pushes the rendered list to the remote file, retrying transient
// connection failures.
func (p *Publisher) Upload(ctx context.Context, ldg *ledger.Ledger) error {
	host, dir, err := parseFTPURL(p.cfg.URL)
	if err != nil {
		return err
	}
	remote := p.cfg.RemoteFile
	if remote == "" {
		remote = "citations.txt"
	}
	remotePath := strings.TrimSuffix(dir, "/") + "/" + remote

	data := Render(ldg)
	p.log.Info("publish: uploading citations list",
		zap.String("host", host),
		zap.String("path", remotePath),
		zap.Int("bytes", len(data)),
	)

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("ftp", "upload")
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return p.upload(ctx, host, remotePath, data)
	})
}

func (p *Publisher) upload(ctx context.Context, host, remotePath string, data []byte) error {
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(p.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "publish: ftp dial")
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login(p.cfg.Username, p.cfg.Password); err != nil {
		return eris.Wrap(err, "publish: ftp login")
	}
	if err := conn.Stor(remotePath, bytes.NewReader(data)); err != nil {
		return eris.Wrap(err, "publish: ftp store")
	}
	return nil
}
