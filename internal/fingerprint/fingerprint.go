// Package fingerprint derives a stable per-installation device
// identifier used as a login and presence tag.
package fingerprint

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// StorageKey is the fixed local-store key holding the identifier.
const StorageKey = "deviceFingerprint"

// Store is the durable key-value storage the identifier persists in.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Attributes seed the fingerprint hash. Zero values render as "unknown"
// or "0" so the input stays stable across calls on the same host.
type Attributes struct {
	UserAgent             string
	Locale                string
	ScreenWidth           int
	ScreenHeight          int
	ColorDepth            int
	TimezoneOffsetMinutes int
	LogicalCores          int
	DeviceMemoryGB        int
}

// HostAttributes collects best-effort attributes for this process.
func HostAttributes() Attributes {
	_, offsetSeconds := time.Now().Zone()
	return Attributes{
		UserAgent:             fmt.Sprintf("chat-client/1.0 (%s; %s; %s)", runtime.GOOS, runtime.GOARCH, runtime.Version()),
		Locale:                locale(),
		TimezoneOffsetMinutes: -offsetSeconds / 60,
		LogicalCores:          runtime.NumCPU(),
	}
}

func locale() string {
	for _, key := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "unknown"
}

// GetOrCreateDeviceID returns the stored device identifier, generating
// and persisting one on first use. Unavailable storage degrades to an
// empty identifier rather than an error.
func GetOrCreateDeviceID(store Store, attrs Attributes) string {
	if store == nil {
		return ""
	}
	if id, ok := store.Get(StorageKey); ok && id != "" {
		return id
	}
	id := newDeviceID(attrs, time.Now())
	if err := store.Set(StorageKey, id); err != nil {
		log.Printf("fingerprint: persist failed: %v", err)
		return ""
	}
	return id
}

// newDeviceID formats DEV-<abs(hash) base36 upper>-<millis base36 upper>.
func newDeviceID(attrs Attributes, now time.Time) string {
	h := hash32(attrs.input())
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return "DEV-" + strings.ToUpper(strconv.FormatInt(abs, 36)) +
		"-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
}

func (a Attributes) input() string {
	return strings.Join([]string{
		a.UserAgent,
		a.Locale,
		fmt.Sprintf("%dx%d", a.ScreenWidth, a.ScreenHeight),
		strconv.Itoa(a.ColorDepth),
		strconv.Itoa(a.TimezoneOffsetMinutes),
		orUnknown(a.LogicalCores),
		orUnknown(a.DeviceMemoryGB),
	}, "|")
}

func orUnknown(n int) string {
	if n <= 0 {
		return "unknown"
	}
	return strconv.Itoa(n)
}

// hash32 is a polynomial rolling hash wrapped to 32 bits each step.
func hash32(s string) int32 {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return h
}
