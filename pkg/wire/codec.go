package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadRequest reads one request. It returns io.EOF when the peer closed the
// connection before sending anything.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	budget := MaxHeaderBytes
	line, err := readLine(r, &budget)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("%w: request line %q", ErrFraming, line)
	}
	req := &Request{Method: parts[0], Resource: parts[1], Version: parts[2]}
	if req.Header, err = readHeader(r, &budget); err != nil {
		return nil, err
	}
	if req.Body, err = readBody(r, req.Header); err != nil {
		return nil, err
	}
	return req, nil
}

// ReadResponse reads one response.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	budget := MaxHeaderBytes
	line, err := readLine(r, &budget)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: connection closed before status line", ErrFraming)
		}
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: status line %q", ErrFraming, line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return nil, fmt.Errorf("%w: status code %q", ErrFraming, parts[1])
	}
	resp := &Response{Version: parts[0], StatusCode: code}
	if len(parts) == 3 {
		resp.Reason = parts[2]
	}
	if resp.Header, err = readHeader(r, &budget); err != nil {
		return nil, err
	}
	if resp.Body, err = readBody(r, resp.Header); err != nil {
		return nil, err
	}
	return resp, nil
}

// Write serializes the request.
func (req *Request) Write(w io.Writer) error {
	return writeMessage(w, req.Method+" "+req.Resource+" "+req.Version, req.Header, req.Body)
}

// Write serializes the response.
func (resp *Response) Write(w io.Writer) error {
	start := resp.Version + " " + strconv.Itoa(resp.StatusCode) + " " + resp.Reason
	return writeMessage(w, start, resp.Header, resp.Body)
}

func writeMessage(w io.Writer, start string, h Header, body []byte) error {
	if h == nil {
		h = make(Header)
	}
	contentType := h.Get(HeaderContentType)
	if contentType == "" {
		contentType = ContentTypePlain
		if len(body) > 0 {
			contentType = ContentTypeJSON
		}
	}

	var buf bytes.Buffer
	buf.WriteString(start + "\r\n")
	fmt.Fprintf(&buf, "%s: %s\r\n", HeaderContentType, contentType)
	fmt.Fprintf(&buf, "%s: %d\r\n", HeaderContentLength, len(body))
	if h.Has(HeaderLamportTime) {
		fmt.Fprintf(&buf, "%s: %s\r\n", HeaderLamportTime, h.Get(HeaderLamportTime))
	}
	for _, name := range h.sortedExtra() {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, h[name])
	}
	buf.WriteString("\r\n")
	buf.Write(body)

	_, err := w.Write(buf.Bytes())
	return err
}

// readLine returns one line without its CRLF (or bare LF) terminator,
// charging its length against budget.
func readLine(r *bufio.Reader, budget *int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		*budget -= len(chunk)
		if *budget < 0 {
			return "", fmt.Errorf("%w: header section exceeds %d bytes", ErrFraming, MaxHeaderBytes)
		}
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return "", fmt.Errorf("%w: unterminated line", ErrFraming)
		}
		return "", err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return string(line), nil
}

func readHeader(r *bufio.Reader, budget *int) (Header, error) {
	h := make(Header)
	for {
		line, err := readLine(r, budget)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: headers not terminated", ErrFraming)
			}
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		if strings.Count(line, ":") != 1 {
			return nil, fmt.Errorf("%w: header line %q", ErrFraming, line)
		}
		name, value, _ := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty header name", ErrFraming)
		}
		h.Set(name, strings.TrimSpace(value))
	}
}

func readBody(r *bufio.Reader, h Header) ([]byte, error) {
	if !h.Has(HeaderContentLength) {
		return nil, nil
	}
	raw := h.Get(HeaderContentLength)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: Content-Length %q", ErrFraming, raw)
	}
	if n == 0 {
		return nil, nil
	}
	if n > MaxBodyBytes {
		return nil, fmt.Errorf("%w: Content-Length %d exceeds %d", ErrFraming, n, MaxBodyBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: body truncated", ErrFraming)
		}
		return nil, err
	}
	return body, nil
}
