package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

type MessageType string

const (
	MessagePointerMove   MessageType = "pointer-move"
	MessagePointerButton MessageType = "pointer-button"
	MessageScroll        MessageType = "scroll"
	MessageKey           MessageType = "key"
	MessageClipboard     MessageType = "clipboard"
	MessageFileMeta      MessageType = "file-meta"
	MessageFileChunk     MessageType = "file-chunk"
	MessageFileComplete  MessageType = "file-complete"
)

type Phase string

const (
	PhaseDown Phase = "down"
	PhaseUp   Phase = "up"
)

type PointerButtonName string

const (
	ButtonLeft   PointerButtonName = "left"
	ButtonMiddle PointerButtonName = "middle"
	ButtonRight  PointerButtonName = "right"
)

// ControlMessage is one frame of the control channel protocol. Concrete
// message types are value types; a decoded message is never mutated.
type ControlMessage interface {
	MessageType() MessageType
}

// PointerMove carries cursor coordinates normalized to the shared
// screen, both axes in [0, 1].
type PointerMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (PointerMove) MessageType() MessageType { return MessagePointerMove }

type PointerButton struct {
	X      float64           `json:"x"`
	Y      float64           `json:"y"`
	Button PointerButtonName `json:"button"`
	Phase  Phase             `json:"phase"`
}

func (PointerButton) MessageType() MessageType { return MessagePointerButton }

// Scroll deltas are in wheel ticks, positive dy scrolling down.
type Scroll struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

func (Scroll) MessageType() MessageType { return MessageScroll }

type Key struct {
	Key       string   `json:"key"`
	Code      string   `json:"code"`
	Phase     Phase    `json:"phase"`
	Modifiers []string `json:"modifiers,omitempty"`
}

func (Key) MessageType() MessageType { return MessageKey }

type Clipboard struct {
	Content string `json:"content"`
}

func (Clipboard) MessageType() MessageType { return MessageClipboard }

// FileMeta announces an incoming file before its first chunk.
type FileMeta struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Size   int64         `json:"size"`
	Mime   string        `json:"mime"`
	FromID ParticipantID `json:"fromId"`
}

func (FileMeta) MessageType() MessageType { return MessageFileMeta }

// FileChunk carries one slice of file content. Data is base64 on the
// wire; indexes start at zero and may arrive out of order.
type FileChunk struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Data  []byte `json:"data"`
}

func (FileChunk) MessageType() MessageType { return MessageFileChunk }

type FileComplete struct {
	ID          string `json:"id"`
	TotalChunks int    `json:"totalChunks"`
}

func (FileComplete) MessageType() MessageType { return MessageFileComplete }

// EncodeControlMessage serializes a message with its type tag spliced
// into the same JSON object.
func EncodeControlMessage(msg ControlMessage) ([]byte, error) {
	switch m := msg.(type) {
	case PointerMove:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			PointerMove
		}{MessagePointerMove, m})
	case PointerButton:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			PointerButton
		}{MessagePointerButton, m})
	case Scroll:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			Scroll
		}{MessageScroll, m})
	case Key:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			Key
		}{MessageKey, m})
	case Clipboard:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			Clipboard
		}{MessageClipboard, m})
	case FileMeta:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			FileMeta
		}{MessageFileMeta, m})
	case FileChunk:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			FileChunk
		}{MessageFileChunk, m})
	case FileComplete:
		return json.Marshal(struct {
			Type MessageType `json:"type"`
			FileComplete
		}{MessageFileComplete, m})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, msg)
	}
}

// DecodeControlMessage parses one control frame. Frames with an
// unrecognized type tag or invalid field values are rejected rather
// than passed through.
func DecodeControlMessage(data []byte) (ControlMessage, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch head.Type {
	case MessagePointerMove:
		var m PointerMove
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if !normalized(m.X) || !normalized(m.Y) {
			return nil, fmt.Errorf("%w: pointer coordinates out of range", ErrMalformedFrame)
		}
		return m, nil
	case MessagePointerButton:
		var m PointerButton
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if !normalized(m.X) || !normalized(m.Y) {
			return nil, fmt.Errorf("%w: pointer coordinates out of range", ErrMalformedFrame)
		}
		if m.Phase != PhaseDown && m.Phase != PhaseUp {
			return nil, fmt.Errorf("%w: unknown button phase %q", ErrMalformedFrame, m.Phase)
		}
		return m, nil
	case MessageScroll:
		var m Scroll
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return m, nil
	case MessageKey:
		var m Key
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if m.Phase != PhaseDown && m.Phase != PhaseUp {
			return nil, fmt.Errorf("%w: unknown key phase %q", ErrMalformedFrame, m.Phase)
		}
		return m, nil
	case MessageClipboard:
		var m Clipboard
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return m, nil
	case MessageFileMeta:
		var m FileMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if m.ID == "" || m.Size < 0 {
			return nil, fmt.Errorf("%w: invalid file meta", ErrMalformedFrame)
		}
		return m, nil
	case MessageFileChunk:
		var m FileChunk
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if m.ID == "" || m.Index < 0 {
			return nil, fmt.Errorf("%w: invalid file chunk", ErrMalformedFrame)
		}
		return m, nil
	case MessageFileComplete:
		var m FileComplete
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if m.ID == "" || m.TotalChunks < 0 {
			return nil, fmt.Errorf("%w: invalid file completion", ErrMalformedFrame)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, head.Type)
	}
}

func normalized(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
