package popgrid

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// downloadFTP retrieves an ftp:// URL to a local file using an anonymous
// login. The census geo server exposes the same archive tree over FTP as
// over HTTPS.
func (f *Fetcher) downloadFTP(ctx context.Context, rawURL, dest string) error {
	host, path, err := parseFTPURL(rawURL)
	if err != nil {
		return err
	}

	zap.L().Debug("popgrid: ftp connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return eris.Wrap(err, "ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return eris.Wrap(err, "ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, resp); err != nil {
		return eris.Wrap(err, "write file")
	}

	return nil
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("empty path in ftp url")
	}

	return host, path, nil
}
