package fingerprint

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	data   map[string]string
	setErr error
}

func newMapStore() *mapStore { return &mapStore{data: map[string]string{}} }

func (m *mapStore) Get(key string) (string, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *mapStore) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

var idPattern = regexp.MustCompile(`^DEV-[0-9A-Z]+-[0-9A-Z]+$`)

func TestGetOrCreateDeviceIDFormat(t *testing.T) {
	st := newMapStore()
	id := GetOrCreateDeviceID(st, HostAttributes())

	assert.Regexp(t, idPattern, id)
	assert.Equal(t, id, st.data[StorageKey])
}

func TestGetOrCreateDeviceIDIsStable(t *testing.T) {
	st := newMapStore()
	first := GetOrCreateDeviceID(st, HostAttributes())
	second := GetOrCreateDeviceID(st, HostAttributes())

	assert.Equal(t, first, second)
}

func TestGetOrCreateDeviceIDWithoutStore(t *testing.T) {
	assert.Equal(t, "", GetOrCreateDeviceID(nil, HostAttributes()))
}

func TestGetOrCreateDeviceIDPersistFailure(t *testing.T) {
	st := newMapStore()
	st.setErr = errors.New("disk full")

	assert.Equal(t, "", GetOrCreateDeviceID(st, HostAttributes()))
}

func TestAttributeInputJoinsAllFields(t *testing.T) {
	attrs := Attributes{
		UserAgent:             "agent",
		Locale:                "en_US",
		ScreenWidth:           1920,
		ScreenHeight:          1080,
		ColorDepth:            24,
		TimezoneOffsetMinutes: -120,
		LogicalCores:          8,
		DeviceMemoryGB:        16,
	}
	assert.Equal(t, "agent|en_US|1920x1080|24|-120|8|16", attrs.input())
}

func TestAttributeInputZeroValues(t *testing.T) {
	assert.Equal(t, "||0x0|0|0|unknown|unknown", Attributes{}.input())
}

func TestNewDeviceIDEncodesTimestamp(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := newDeviceID(Attributes{UserAgent: "agent"}, now)

	require.Regexp(t, idPattern, id)
	assert.True(t, strings.HasSuffix(id, "-LOYW3V28"), "id %q", id)
}

func TestHash32WrapsToInt32(t *testing.T) {
	// Same polynomial as a 32-bit Java-style string hash.
	assert.Equal(t, int32(99162322), hash32("hello"))
	assert.Equal(t, int32(0), hash32(""))
}
