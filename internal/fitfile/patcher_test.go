package fitfile

import (
	"bytes"
	"encoding/binary"
	"log"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"

	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/domain"
)

type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(&testWriter{t: t}, "", 0)
}

// writeActivityFixture encodes a small trainer-branded activity file into
// the filesystem and returns its bytes.
func writeActivityFixture(t *testing.T, fs billy.Filesystem, path string) []byte {
	t.Helper()

	started := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	require.NoError(t, err)
	file.FileId.Manufacturer = fit.ManufacturerDevelopment
	file.FileId.Product = 65534
	file.FileId.TimeCreated = started

	activity, err := file.Activity()
	require.NoError(t, err)
	activity.Activity = &fit.ActivityMsg{Timestamp: started}
	activity.DeviceInfos = append(activity.DeviceInfos,
		&fit.DeviceInfoMsg{Timestamp: started, Manufacturer: fit.ManufacturerDevelopment, Product: 65534},
		&fit.DeviceInfoMsg{Timestamp: started.Add(time.Hour), Manufacturer: fit.ManufacturerDevelopment, Product: 65534},
	)

	var buf bytes.Buffer
	require.NoError(t, fit.Encode(&buf, file, binary.LittleEndian))
	require.NoError(t, util.WriteFile(fs, path, buf.Bytes(), 0o644))
	return buf.Bytes()
}

func TestPatchDeviceIdentity(t *testing.T) {
	fs := memfs.New()
	original := writeActivityFixture(t, fs, "ride.fit")
	patcher := New(WithFilesystem(fs), WithLogger(testLogger(t)))

	out, err := patcher.PatchDeviceIdentity("ride.fit")
	require.NoError(t, err)
	require.Equal(t, "ride_garmin.fit", out)

	patched, err := util.ReadFile(fs, out)
	require.NoError(t, err)
	decoded, err := fit.Decode(bytes.NewReader(patched))
	require.NoError(t, err)
	require.Equal(t, fit.ManufacturerGarmin, decoded.FileId.Manufacturer)
	require.Equal(t, edge840ProductID, decoded.FileId.Product)

	activity, err := decoded.Activity()
	require.NoError(t, err)
	require.Len(t, activity.DeviceInfos, 2)
	for _, device := range activity.DeviceInfos {
		require.Equal(t, fit.ManufacturerGarmin, device.Manufacturer)
		require.Equal(t, edge840ProductID, device.Product)
	}

	after, err := util.ReadFile(fs, "ride.fit")
	require.NoError(t, err)
	require.Equal(t, original, after, "input file must stay untouched")
}

func TestPatchDeviceIdentityCustomDevice(t *testing.T) {
	fs := memfs.New()
	writeActivityFixture(t, fs, "ride.fit")
	patcher := New(
		WithFilesystem(fs),
		WithLogger(testLogger(t)),
		WithDevice(fit.ManufacturerWahooFitness, 99),
	)

	out, err := patcher.PatchDeviceIdentity("ride.fit")
	require.NoError(t, err)

	patched, err := util.ReadFile(fs, out)
	require.NoError(t, err)
	decoded, err := fit.Decode(bytes.NewReader(patched))
	require.NoError(t, err)
	require.Equal(t, fit.ManufacturerWahooFitness, decoded.FileId.Manufacturer)
	require.Equal(t, uint16(99), decoded.FileId.Product)
}

func TestPatchDeviceIdentityRejectsGarbage(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "junk.fit", []byte("this is not a fit file"), 0o644))
	patcher := New(WithFilesystem(fs), WithLogger(testLogger(t)))

	_, err := patcher.PatchDeviceIdentity("junk.fit")
	require.ErrorIs(t, err, domain.ErrFormat)
}

func TestPatchDeviceIdentityMissingFile(t *testing.T) {
	patcher := New(WithFilesystem(memfs.New()), WithLogger(testLogger(t)))

	_, err := patcher.PatchDeviceIdentity("absent.fit")
	require.ErrorIs(t, err, domain.ErrFormat)
}

func TestCleanup(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "ride.fit", []byte("payload"), 0o644))
	patcher := New(WithFilesystem(fs), WithLogger(testLogger(t)))

	patcher.Cleanup("ride.fit")
	_, err := fs.Stat("ride.fit")
	require.Error(t, err)

	patcher.Cleanup("ride.fit")
	patcher.Cleanup("")
}
