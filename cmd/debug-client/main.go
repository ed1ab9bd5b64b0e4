// ABOUTME: Minimal debugger front end for manual and E2E testing of debug-agent
// ABOUTME: Usage: debug-client [--addr 127.0.0.1:5858] [--cmd version] [--cmd '{"command":"evaluate",...}']
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/2389/debug-agent/internal/wire"
)

func main() {
	addr := pflag.StringP("addr", "a", "127.0.0.1:5858", "debug agent address")
	cmds := pflag.StringArrayP("cmd", "c", nil, "command name or JSON request object (repeatable)")
	timeout := pflag.DurationP("timeout", "t", 5*time.Second, "time to wait for each response")
	stay := pflag.Bool("no-disconnect", false, "drop the connection instead of sending disconnect")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *addr, *cmds, *timeout, !*stay); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, addr string, cmds []string, timeout time.Duration, disconnect bool) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	// Interrupt blocked reads on Ctrl-C.
	go func() {
		<-ctx.Done()
		_ = conn.SetDeadline(time.Now())
	}()

	r := bufio.NewReader(conn)

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	headers, err := readHandshake(r)
	if err != nil {
		return err
	}
	for _, h := range headers {
		fmt.Fprintf(os.Stderr, "< %s\n", h)
	}

	seq := int64(0)
	for _, c := range cmds {
		seq++
		req, err := buildRequest(c, seq)
		if err != nil {
			return err
		}
		if err := exchange(conn, r, req, seq, timeout); err != nil {
			return err
		}
	}

	if !disconnect {
		return nil
	}
	seq++
	req, _ := buildRequest("disconnect", seq)
	err = exchange(conn, r, req, seq, timeout)
	if errors.Is(err, wire.ErrConnectionClosed) {
		// The agent may hang up before the engine answers.
		fmt.Fprintln(os.Stderr, "disconnected")
		return nil
	}
	return err
}

// readHandshake reads the connect header block. A second debugger is
// refused with a plain text line instead.
func readHandshake(r *bufio.Reader) ([]string, error) {
	var headers []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading handshake: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return headers, nil
		}
		if len(headers) == 0 && !strings.HasPrefix(line, "Type:") {
			return nil, errors.New(line)
		}
		headers = append(headers, line)
	}
}

// requestTemplate keeps the key order the agent relies on to spot a
// disconnect request.
const requestTemplate = `{"seq":0,"type":"request","command":""}`

// buildRequest turns a bare command name or a JSON object into a request
// carrying the given seq.
func buildRequest(cmd string, seq int64) (string, error) {
	req := cmd
	if !strings.HasPrefix(strings.TrimSpace(cmd), "{") {
		req, _ = sjson.Set(requestTemplate, "command", cmd)
	} else if !gjson.Valid(cmd) {
		return "", fmt.Errorf("invalid JSON request: %s", cmd)
	}

	var err error
	if req, err = sjson.Set(req, "seq", seq); err != nil {
		return "", fmt.Errorf("setting seq: %w", err)
	}
	if !gjson.Get(req, "type").Exists() {
		req, _ = sjson.Set(req, "type", "request")
	}
	return req, nil
}

// exchange sends req and prints every frame until the matching response.
func exchange(conn net.Conn, r *bufio.Reader, req string, seq int64, timeout time.Duration) error {
	fmt.Printf("> %s\n", req)
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := wire.SendMessage(conn, wire.EncodeString(req)); err != nil {
		return fmt.Errorf("send error: %w", err)
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		body, err := wire.ReceiveMessage(r, nil)
		if err != nil {
			return fmt.Errorf("recv error: %w", err)
		}

		msg := gjson.ParseBytes(body)
		fmt.Printf("< %s\n", strings.TrimSpace(msg.Get("@pretty").String()))

		if msg.Get("type").String() == "response" && msg.Get("request_seq").Int() == seq {
			if !msg.Get("success").Bool() {
				log.Printf("request %d failed: %s", seq, msg.Get("message").String())
			}
			return nil
		}
	}
}
