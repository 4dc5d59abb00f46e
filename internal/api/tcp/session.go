package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/avoynich/wsprovd/internal/logger"
)

// maxLineLength caps the argument payload of a single command. Anything
// longer is rejected outright, never truncated into a shorter command.
const maxLineLength = 8000

const greeting = `{"name":"wsprovd","version":"0.1","code":200,"status":"OK"}`

var errLineTooLong = errors.New("command line too long")

// tokenPattern splits a command line on whitespace while keeping quoted
// arguments intact.
var tokenPattern = regexp.MustCompile(`"[^"]+"|"[^"]+$|[\S\[\]]+`)

// Session owns one client connection for its lifetime. It reads command
// lines, feeds them through the engine in arrival order, and tears down
// on QUIT, idle timeout, or I/O failure.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	engine *Engine
	logger *logger.Logger

	idleTimeout  time.Duration
	writeTimeout time.Duration

	host string
}

func NewSession(
	conn net.Conn,
	engine *Engine,
	idleTimeout time.Duration,
	writeTimeout time.Duration,
	logger *logger.Logger,
) *Session {
	host := conn.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	return &Session{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		engine:       engine,
		logger:       logger,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
		host:         host,
	}
}

// Host returns the client address with the port stripped. Safeguard
// records are keyed by it.
func (s *Session) Host() string {
	return s.host
}

// WriteLine sends one CRLF-terminated response line.
func (s *Session) WriteLine(line string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := s.conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// Serve runs the session loop until the client quits, the connection
// fails, or ctx is cancelled.
func (s *Session) Serve(ctx context.Context) {
	defer s.conn.Close()

	if err := s.WriteLine(greeting); err != nil {
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			return
		}

		line, err := s.readLine()
		if errors.Is(err, errLineTooLong) {
			// The oversized line is already drained; it never reaches
			// the parser.
			if werr := s.WriteLine("400 BAD DATA"); werr != nil {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Info("Session: read failed",
					"host", s.host,
					"error", err.Error())
			}
			return
		}

		tokens := tokenPattern.FindAllString(line, -1)
		if !s.engine.HandleLine(ctx, tokens, s) {
			return
		}
	}
}

// readLine reads one line and enforces the payload cap. An overlong
// line is consumed to its end so the remainder cannot be misread as a
// followup command.
func (s *Session) readLine() (string, error) {
	var buf []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		buf = append(buf, chunk...)

		if errors.Is(err, bufio.ErrBufferFull) {
			if len(buf) > maxLineLength {
				if derr := s.drainLine(); derr != nil {
					return "", derr
				}
				return "", errLineTooLong
			}
			continue
		}
		if err != nil {
			return "", err
		}

		line := strings.TrimRight(string(buf), "\r\n")
		if len(line) > maxLineLength {
			return "", errLineTooLong
		}
		return line, nil
	}
}

func (s *Session) drainLine() error {
	for {
		_, err := s.reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return err
	}
}
