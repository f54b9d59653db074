package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeControlMessage_TypeTags(t *testing.T) {
	tests := []struct {
		name     string
		msg      ControlMessage
		wantType string
	}{
		{"pointer move", PointerMove{X: 0.5, Y: 0.5}, "pointer-move"},
		{"pointer button", PointerButton{X: 0.1, Y: 0.2, Button: ButtonLeft, Phase: PhaseDown}, "pointer-button"},
		{"scroll", Scroll{DX: 0, DY: -3}, "scroll"},
		{"key", Key{Key: "a", Code: "KeyA", Phase: PhaseUp}, "key"},
		{"clipboard", Clipboard{Content: "copied"}, "clipboard"},
		{"file meta", FileMeta{ID: "xfer_1", Name: "report.pdf", Size: 1024, Mime: "application/pdf", FromID: "part_a"}, "file-meta"},
		{"file chunk", FileChunk{ID: "xfer_1", Index: 0, Data: []byte("payload")}, "file-chunk"},
		{"file complete", FileComplete{ID: "xfer_1", TotalChunks: 1}, "file-complete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeControlMessage(tt.msg)
			require.NoError(t, err)

			var head map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &head))
			assert.Equal(t, tt.wantType, head["type"])
		})
	}
}

func TestControlMessage_RoundTrip(t *testing.T) {
	msgs := []ControlMessage{
		PointerMove{X: 0.25, Y: 0.75},
		PointerButton{X: 1, Y: 0, Button: ButtonRight, Phase: PhaseUp},
		Scroll{DX: 1.5, DY: -2},
		Key{Key: "V", Code: "KeyV", Phase: PhaseDown, Modifiers: []string{"ctrl", "shift"}},
		Clipboard{Content: "hello\nworld"},
		FileMeta{ID: "xfer_ab", Name: "photo.png", Size: 70000, Mime: "image/png", FromID: "part_b"},
		FileChunk{ID: "xfer_ab", Index: 3, Data: []byte{0x00, 0xff, 0x10}},
		FileComplete{ID: "xfer_ab", TotalChunks: 2},
	}

	for _, msg := range msgs {
		data, err := EncodeControlMessage(msg)
		require.NoError(t, err)

		decoded, err := DecodeControlMessage(data)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	}
}

func TestDecodeControlMessage_ChunkDataIsBase64(t *testing.T) {
	data, err := EncodeControlMessage(FileChunk{ID: "xfer_1", Index: 0, Data: []byte("abc")})
	require.NoError(t, err)

	var raw struct {
		Data string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "YWJj", raw.Data)
}

func TestDecodeControlMessage_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"unknown type", `{"type":"format-disk"}`, ErrUnknownMessageType},
		{"empty type", `{"x":0.5,"y":0.5}`, ErrUnknownMessageType},
		{"not json", `pointer-move 0.5 0.5`, ErrMalformedFrame},
		{"wrong field type", `{"type":"pointer-move","x":"half","y":0.5}`, ErrMalformedFrame},
		{"pointer x above range", `{"type":"pointer-move","x":1.5,"y":0.5}`, ErrMalformedFrame},
		{"pointer y negative", `{"type":"pointer-move","x":0.5,"y":-0.1}`, ErrMalformedFrame},
		{"button bad phase", `{"type":"pointer-button","x":0.5,"y":0.5,"button":"left","phase":"held"}`, ErrMalformedFrame},
		{"button x out of range", `{"type":"pointer-button","x":2,"y":0.5,"button":"left","phase":"down"}`, ErrMalformedFrame},
		{"key bad phase", `{"type":"key","key":"a","code":"KeyA","phase":"pressed"}`, ErrMalformedFrame},
		{"meta missing id", `{"type":"file-meta","name":"x.bin","size":10}`, ErrMalformedFrame},
		{"meta negative size", `{"type":"file-meta","id":"xfer_1","name":"x.bin","size":-1}`, ErrMalformedFrame},
		{"chunk negative index", `{"type":"file-chunk","id":"xfer_1","index":-1,"data":"YQ=="}`, ErrMalformedFrame},
		{"chunk bad base64", `{"type":"file-chunk","id":"xfer_1","index":0,"data":"not base64!!"}`, ErrMalformedFrame},
		{"complete missing id", `{"type":"file-complete","totalChunks":4}`, ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeControlMessage([]byte(tt.frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeControlMessage_BoundaryCoordinates(t *testing.T) {
	for _, frame := range []string{
		`{"type":"pointer-move","x":0,"y":0}`,
		`{"type":"pointer-move","x":1,"y":1}`,
	} {
		_, err := DecodeControlMessage([]byte(frame))
		assert.NoError(t, err, frame)
	}
}

func TestDecodeControlMessage_WireFieldNames(t *testing.T) {
	frame := `{"type":"file-meta","id":"xfer_9","name":"notes.txt","size":42,"mime":"text/plain","fromId":"part_z"}`

	decoded, err := DecodeControlMessage([]byte(frame))
	require.NoError(t, err)

	meta, ok := decoded.(FileMeta)
	require.True(t, ok)
	assert.Equal(t, "xfer_9", meta.ID)
	assert.Equal(t, "notes.txt", meta.Name)
	assert.Equal(t, int64(42), meta.Size)
	assert.Equal(t, "text/plain", meta.Mime)
	assert.Equal(t, ParticipantID("part_z"), meta.FromID)
}
