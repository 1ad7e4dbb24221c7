package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode_String(t *testing.T) {
	assert.Equal(t, "purchase", ModePurchase.String())
	assert.Equal(t, "consume all", ModeConsumeAll.String())
	assert.Equal(t, "mode 42", Mode(42).String())
	assert.True(t, ModeInventory.Known())
	assert.False(t, Mode(-1).Known())
}

func TestModeResponse_Decode(t *testing.T) {
	var list []ModeResponse
	require.NoError(t, json.Unmarshal([]byte(`[{"data":{"mode":3},"result":{"result":"OK","http_code":200}}]`), &list))

	require.Len(t, list, 1)
	require.NotNil(t, list[0].Data)
	require.NotNil(t, list[0].Data.Mode)
	assert.Equal(t, 3, *list[0].Data.Mode)
	assert.Equal(t, "OK", list[0].Result.Result)
}

func TestScanEvent_ToSSEEventData(t *testing.T) {
	price := 2.5
	ev := &ScanEvent{ID: "e1", Barcode: "ABC", Price: &price, Status: ScanStatusForwarded, UpstreamStatus: 200}

	var got map[string]any
	require.NoError(t, json.Unmarshal(ev.ToSSEEventData(), &got))
	assert.Equal(t, "ABC", got["barcode"])
	assert.Equal(t, 2.5, got["price"])
	assert.Nil(t, got["bestBeforeInDays"])
	assert.Equal(t, "forwarded", got["status"])
}
