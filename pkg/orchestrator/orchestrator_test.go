package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bipm-ttc/mktimetx/pkg/ephstore"
	"github.com/bipm-ttc/mktimetx/pkg/gnss"
	"github.com/bipm-ttc/mktimetx/pkg/receiver"
)

func TestNewDecoder_DispatchesKnownModels(t *testing.T) {
	for _, model := range []string{"javad", "nvs", "trimble", "ublox"} {
		dec, err := newDecoder(model, "/dev/null")
		require.NoError(t, err, model)
		assert.NotNil(t, dec, model)
	}
}

func TestNewDecoder_RejectsUnknownModel(t *testing.T) {
	_, err := newDecoder("acme9000", "/dev/null")
	assert.Error(t, err)
}

func TestParseSystem_MapsKnownAbbreviations(t *testing.T) {
	sys, err := parseSystem("GAL")
	require.NoError(t, err)
	assert.Equal(t, gnss.SysGAL, sys)
}

func TestParseSystem_RejectsUnknown(t *testing.T) {
	_, err := parseSystem("XYZ")
	assert.Error(t, err)
}

func TestStoreFor_ReturnsEmptyStoreWhenMissing(t *testing.T) {
	result := receiver.NewResult()
	store := storeFor(result, gnss.SysGPS)
	require.NotNil(t, store)
	assert.Equal(t, 0, store.Len())
}

func TestStoreFor_ReturnsExistingStore(t *testing.T) {
	result := receiver.NewResult()
	want := ephstore.NewStore()
	result.StoreBySystem[gnss.SysGPS] = want
	assert.Same(t, want, storeFor(result, gnss.SysGPS))
}

func TestDefaultInt_FallsBackOnZero(t *testing.T) {
	assert.Equal(t, 390, defaultInt(0, 390))
	assert.Equal(t, 500, defaultInt(500, 390))
}

func TestDefaultFloat_FallsBackOnZero(t *testing.T) {
	assert.Equal(t, 10.0, defaultFloat(0, 10))
	assert.Equal(t, 5.0, defaultFloat(5, 10))
}

func TestVersionCode_MapsV1AndV2E(t *testing.T) {
	assert.Equal(t, "01", versionCode("V1"))
	assert.Equal(t, "2E", versionCode("V2E"))
}

func TestRunIDFromContext_EmptyWithoutRunID(t *testing.T) {
	assert.Equal(t, "", RunIDFromContext(context.Background()))
}

func TestWithRunID_ProducesRetrievableID(t *testing.T) {
	ctx, id := WithRunID(context.Background())
	assert.NotEmpty(t, id)
	assert.Equal(t, id, RunIDFromContext(ctx))
}
