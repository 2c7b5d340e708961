// wiretap captures the raw event feed from a switch's event socket into a
// file, for debugging and for building parser test fixtures. It can also
// sanitize a capture in-place before it is committed anywhere.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Switch event socket host")
	port := flag.Int("port", 8021, "Switch event socket port")
	password := flag.String("password", "", "Event socket password")
	outDir := flag.String("outdir", "testdata/captures", "Output directory for captures")
	events := flag.String("events", "ALL", "Event subscription (plain format)")
	sanitize := flag.String("sanitize", "", "Sanitize a capture file in-place (keeps .orig)")
	flag.Parse()

	if *sanitize != "" {
		if err := sanitizeFile(*sanitize); err != nil {
			fmt.Fprintf(os.Stderr, "sanitize error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("sanitized:", *sanitize)
		return
	}

	if *password == "" {
		fmt.Fprintln(os.Stderr, "error: -password is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := capture(*host, *port, *password, *events, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func capture(host string, port int, password, events, outDir string) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	fmt.Printf("connecting to %s...\n", addr)

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	filename := filepath.Join(outDir, time.Now().Format("20060102-150405")+".raw")
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer f.Close()

	fmt.Printf("writing to %s\n", filename)

	// The switch opens with an auth/request block
	reader := bufio.NewReader(conn)
	if err := readBlock(reader, nil); err != nil {
		return fmt.Errorf("reading auth request: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "auth %s\n\n", password); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}
	if err := readBlock(reader, nil); err != nil {
		return fmt.Errorf("reading auth reply: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "event plain %s\n\n", events); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	// Stream everything to file
	fmt.Println("streaming events (ctrl+c to stop)...")
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		f.WriteString(scanner.Text() + "\n")
	}

	return scanner.Err()
}

// readBlock consumes one header block up to its terminating blank line,
// optionally echoing lines to w.
func readBlock(r *bufio.Reader, w *os.File) error {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		if w != nil {
			w.WriteString(line)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return nil
		}
	}
}

var (
	reAuthLine = regexp.MustCompile(`(?i)^auth\s+\S+`)
	rePassword = regexp.MustCompile(`(?i)(password:\s*)\S+`)
	reAddr     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	reNumber   = regexp.MustCompile(`\b1?\d{10}\b`)
)

// sanitizeFile rewrites a capture with credentials, host addresses, and
// dialed numbers masked. The unmodified capture stays next to it as
// <path>.orig until the operator deletes it.
func sanitizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+".orig", data, 0o644); err != nil {
		return fmt.Errorf("keeping original: %w", err)
	}

	var out strings.Builder
	out.Grow(len(data))
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out.WriteString(scrubLine(sc.Text()))
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(out.String()), 0o644)
}

func scrubLine(line string) string {
	line = reAuthLine.ReplaceAllString(line, "auth REDACTED")
	line = rePassword.ReplaceAllString(line, "${1}REDACTED")
	line = reAddr.ReplaceAllStringFunc(line, maskAddr)
	// Dialed numbers only appear in caller and destination fields; masking
	// everywhere would mangle uuids and timestamps.
	if strings.Contains(line, "Caller-") || strings.Contains(line, "Destination") {
		line = reNumber.ReplaceAllString(line, "15550001234")
	}
	return line
}

// maskAddr keeps loopback addresses readable and collapses everything else
// to one placeholder.
func maskAddr(ip string) string {
	if strings.HasPrefix(ip, "127.") {
		return ip
	}
	return "10.0.0.1"
}
