package domain

import (
	"io"
	"time"
)

// ChunkSize is how many bytes of file content each FileChunk carries
// before base64 expansion.
const ChunkSize = 64 * 1024

// OutgoingFile describes a file queued for sending. Size must match the
// number of bytes Reader yields.
type OutgoingFile struct {
	ID     string
	Name   string
	Mime   string
	Size   int64
	Reader io.Reader
}

// FileTransferState tracks one inbound transfer between its meta frame
// and completion.
type FileTransferState struct {
	ID            string
	Meta          FileMeta
	Chunks        map[int][]byte
	ReceivedBytes int64
	StartedAt     time.Time
	LastActivity  time.Time
}

// ReceivedFile is a fully reassembled inbound file. Path is set when the
// content was spooled to disk instead of kept in memory.
type ReceivedFile struct {
	Meta   FileMeta
	Data   []byte
	Path   string
	Chunks int
}

type TransferProgress struct {
	ID            string
	Name          string
	FromID        ParticipantID
	ReceivedBytes int64
	TotalBytes    int64
	Chunks        int
	StartedAt     time.Time
	LastActivity  time.Time
}
