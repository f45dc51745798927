package session

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	errNoStatusLine = errors.New("response has no status line")
	errShortBody    = errors.New("response body shorter than declared")
)

// Request is one HTTPS request. Zero fields take the executor's config values.
type Request struct {
	Hostname string
	// Path includes the query, e.g. "/v1/check?code=1"
	Path      string
	Port      int
	Method    string
	Interface string
}

// ParseURL turns an https URL into a Request.
func ParseURL(raw string) (Request, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Request{}, fmt.Errorf("invalid url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return Request{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return Request{}, fmt.Errorf("url %q has no host", raw)
	}
	req := Request{Hostname: u.Hostname(), Path: u.RequestURI()}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Request{}, fmt.Errorf("invalid port %q", p)
		}
		req.Port = port
	}
	return req, nil
}

func (r Request) hostHeader() string {
	if r.Port == 0 || r.Port == DefaultPort {
		if strings.Contains(r.Hostname, ":") {
			return "[" + r.Hostname + "]"
		}
		return r.Hostname
	}
	return net.JoinHostPort(r.Hostname, strconv.Itoa(r.Port))
}

// wireFormat renders the request line and headers. The connection is closed after one exchange.
func (r Request) wireFormat(userAgent string) []byte {
	path := r.Path
	if path == "" {
		path = "/"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", r.Method, path)
	fmt.Fprintf(&b, "Host: %s\r\n", r.hostHeader())
	b.WriteString("Accept: */*\r\n")
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	b.WriteString("Connection: close\r\n")
	if r.Method == http.MethodPost {
		b.WriteString("Content-Type: application/json\r\n")
		b.WriteString("Content-Length: 0\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

type response struct {
	code     int
	line     string
	location string
	body     []byte
}

// parseResponse reads a complete response out of raw. Chunked and content-length framing are
// both handled, otherwise the body runs to the end of raw.
func parseResponse(raw []byte, method string) (*response, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), &http.Request{Method: method})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse response"), errNoStatusLine)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read body of %s", resp.Status), errShortBody)
	}
	return &response{
		code:     resp.StatusCode,
		line:     resp.Proto + " " + resp.Status,
		location: resp.Header.Get("Location"),
		body:     body,
	}, nil
}
