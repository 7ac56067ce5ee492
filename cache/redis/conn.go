package redis

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// clientConn pairs a TCP connection with its buffered RESP reader.
type clientConn struct {
	net.Conn
	reader *bufio.Reader
}

type dialFunc func(context.Context, Options) (net.Conn, error)

func defaultDial(ctx context.Context, opts Options) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	return dialer.DialContext(ctx, "tcp", opts.Addr)
}

func (s *Store) withConn(ctx context.Context, fn func(*clientConn) error) error {
	conn, err := s.acquireConn(ctx)
	if err != nil {
		return err
	}
	broken := false
	defer func() {
		s.releaseConn(conn, broken)
	}()
	if err := fn(conn); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			broken = true
		}
		return err
	}
	return nil
}

func (s *Store) acquireConn(ctx context.Context) (*clientConn, error) {
	select {
	case conn := <-s.pool:
		return conn, nil
	default:
		return s.newConn(ctx)
	}
}

func (s *Store) releaseConn(conn *clientConn, broken bool) {
	if conn == nil {
		return
	}
	if broken {
		_ = conn.Close()
		return
	}
	select {
	case s.pool <- conn:
	default:
		_ = conn.Close()
	}
}

func (s *Store) newConn(ctx context.Context) (*clientConn, error) {
	nc, err := s.dialFn(ctx, s.opts)
	if err != nil {
		return nil, err
	}
	reader := bufio.NewReader(nc)
	if err := s.handshake(nc, reader); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return &clientConn{Conn: nc, reader: reader}, nil
}

func (s *Store) handshake(conn net.Conn, reader *bufio.Reader) error {
	if s.opts.Password != "" {
		if err := s.sendRaw(conn, "AUTH", s.opts.Password); err != nil {
			return err
		}
		if err := s.expectOK(reader); err != nil {
			return err
		}
	}
	if s.opts.DB > 0 {
		if err := s.sendRaw(conn, "SELECT", strconv.Itoa(s.opts.DB)); err != nil {
			return err
		}
		if err := s.expectOK(reader); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) expectOK(reader *bufio.Reader) error {
	resp, err := decodeRESP(reader)
	if err != nil {
		return err
	}
	if msg, ok := resp.(string); ok && strings.EqualFold(msg, "OK") {
		return nil
	}
	return fmt.Errorf("redis: expected OK, got %v", resp)
}

func (s *Store) send(conn *clientConn, parts ...string) error {
	if err := applyDeadline(conn.SetWriteDeadline, s.opts.WriteTimeout); err != nil {
		return err
	}
	payload := buildCommand(parts...)
	_, err := conn.Write(payload)
	return err
}

func (s *Store) read(conn *clientConn) (any, error) {
	if err := applyDeadline(conn.SetReadDeadline, s.opts.ReadTimeout); err != nil {
		return nil, err
	}
	return decodeRESP(conn.reader)
}

// sendRaw is used during handshake before the buffered reader is available.
func (s *Store) sendRaw(conn net.Conn, parts ...string) error {
	if err := applyDeadline(conn.SetWriteDeadline, s.opts.WriteTimeout); err != nil {
		return err
	}
	payload := buildCommand(parts...)
	_, err := conn.Write(payload)
	return err
}

func buildCommand(parts ...string) []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "*%d\r\n", len(parts))
	for _, part := range parts {
		fmt.Fprintf(buf, "$%d\r\n%s\r\n", len(part), part)
	}
	return buf.Bytes()
}

func decodeRESP(r *bufio.Reader) (any, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(line, "\r\n")
	switch prefix {
	case '+':
		return line, nil
	case '-':
		return nil, errors.New(line)
	case ':':
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case '$':
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, err
		}
		if n == -1 {
			return nil, nil
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		if err := consumeCRLF(r); err != nil {
			return nil, err
		}
		return data, nil
	case '*':
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil, err
		}
		if n == -1 {
			return nil, nil
		}
		arr := make([]any, n)
		for i := 0; i < int(n); i++ {
			val, err := decodeRESP(r)
			if err != nil {
				return nil, err
			}
			arr[i] = val
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("redis: unsupported RESP prefix %q", prefix)
	}
}

func consumeCRLF(r *bufio.Reader) error {
	b1, err := r.ReadByte()
	if err != nil {
		return err
	}
	b2, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b1 != '\r' || b2 != '\n' {
		return errors.New("redis: malformed RESP terminator")
	}
	return nil
}

func applyDeadline(setter func(time.Time) error, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return setter(time.Now().Add(timeout))
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
