package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalidColor = errors.New("invalid color")

// loadEnv loads .env into the environment. A missing file is not an error.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env file: %v\n", err)
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// validateColor accepts RRGGBB with an optional leading '#'.
func validateColor(color string) error {
	hex := strings.TrimPrefix(color, "#")
	if len(hex) != 6 {
		return fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	return nil
}

// sameColor compares colors ignoring case and a leading '#'.
func sameColor(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "#"), strings.TrimPrefix(b, "#"))
}

func validateIncomingMessage(msg IncomingMessage) error {
	if msg.Type != "get" {
		return fmt.Errorf("invalid message type: %s", msg.Type)
	}

	if msg.Data.Index < 0 {
		return fmt.Errorf("invalid index: %d", msg.Data.Index)
	}

	return nil
}

func getIP(r *http.Request) (netip.Addr, bool) {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		addr, err := netip.ParseAddr(strings.TrimSpace(ip))
		return addr, err == nil
	}

	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		addr, err := netip.ParseAddr(strings.TrimSpace(strings.Split(ip, ",")[0]))
		return addr, err == nil
	}

	addrPort, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, false
	}
	return addrPort.Addr(), true
}
