package rinex

import (
	"bufio"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bipm-ttc/mktimetx/pkg/ephstore"
	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/measurement"
)

func TestWriteObservationFile_OnlyNonEmptySecondsWriteEpochs(t *testing.T) {
	var pairs [86400]measurement.Pair
	rm := &measurement.ReceiverMeasurement{}
	svm := &measurement.SvMeasurement{Constellation: gnss.SysGPS, SVN: 5, Code: gnss.C1C, Value: 0.075}
	rm.SV = append(rm.SV, svm)
	pairs[120].Receiver = rm

	path := t.TempDir() + "/test.obs"
	require.NoError(t, WriteObservationFile(path, "3", "TestRx", "TEST", pairs))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var epochLines, satLines int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "> ") {
			epochLines++
		}
		if strings.HasPrefix(line, "G05") {
			satLines++
		}
	}
	assert.Equal(t, 1, epochLines)
	assert.Equal(t, 1, satLines)
}

func TestWriteObservationFile_HeaderCarriesMarkerName(t *testing.T) {
	var pairs [86400]measurement.Pair
	path := t.TempDir() + "/test.obs"
	require.NoError(t, WriteObservationFile(path, "3", "TestRx", "MARK1", pairs))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "MARK1")
	assert.Contains(t, string(content), "MARKER NAME")
}

func TestWriteNavigationFile_WritesOneRecordPerStoredEphemeris(t *testing.T) {
	store := ephstore.NewStore()
	store.Add(&ephstore.GPSEph{SVNNum: 12, WeekNum: 2100, T0cSec: 0, T0eSec: 0})
	stores := map[gnss.System]*ephstore.Store{gnss.SysGPS: store}

	path := t.TempDir() + "/test.nav"
	require.NoError(t, WriteNavigationFile(path, "3", stores))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "G12")
	assert.Contains(t, string(content), "END OF HEADER")
}

func TestWriteNavigationFile_SkipsEmptyStores(t *testing.T) {
	stores := map[gnss.System]*ephstore.Store{gnss.SysGPS: ephstore.NewStore()}
	path := t.TempDir() + "/empty.nav"
	require.NoError(t, WriteNavigationFile(path, "3", stores))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "G0")
}
