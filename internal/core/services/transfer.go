package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"
	"desklink/pkg/optimize"
	"desklink/pkg/utils"

	"go.uber.org/zap"
)

// TransferService chunks outbound files over the control channel and
// reassembles inbound ones. Stale inbound transfers are swept out after
// a TTL without activity.
type TransferService struct {
	sender ports.ControlSender
	logger *zap.SugaredLogger

	mu        sync.Mutex
	transfers map[string]*inboundTransfer

	ttl         time.Duration
	sweepEvery  time.Duration
	downloadDir string
	chunkPool   *optimize.BytePool

	onReceived []func(domain.ReceivedFile)

	nowFn func() time.Time
}

type inboundTransfer struct {
	from  domain.ParticipantID
	state domain.FileTransferState
}

func NewTransferService(sender ports.ControlSender, ttl, sweepEvery time.Duration, downloadDir string, logger *zap.SugaredLogger) *TransferService {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}
	return &TransferService{
		sender:      sender,
		logger:      logger,
		transfers:   make(map[string]*inboundTransfer),
		ttl:         ttl,
		sweepEvery:  sweepEvery,
		downloadDir: downloadDir,
		chunkPool:   optimize.NewBytePool(domain.ChunkSize),
		nowFn:       time.Now,
	}
}

// OnFileReceived registers a callback for completed inbound transfers.
// Register callbacks before the first frame is routed in.
func (t *TransferService) OnFileReceived(fn func(domain.ReceivedFile)) {
	t.onReceived = append(t.onReceived, fn)
}

// Send streams a file to a remote as meta, chunks, then completion.
// Returns the transfer id used on the wire.
func (t *TransferService) Send(ctx context.Context, remoteID domain.ParticipantID, file domain.OutgoingFile) (string, error) {
	if file.Reader == nil {
		return "", fmt.Errorf("outgoing file %q has no reader", file.Name)
	}
	if file.Size < 0 {
		return "", domain.ErrTransferSizeMismatch
	}

	id := file.ID
	if id == "" {
		id = utils.GenerateTransferID()
	}

	meta := domain.FileMeta{
		ID:   id,
		Name: file.Name,
		Size: file.Size,
		Mime: file.Mime,
	}
	if err := t.sender.SendControl(ctx, remoteID, meta); err != nil {
		return "", err
	}

	buf := t.chunkPool.Get()
	defer t.chunkPool.Put(buf)

	var sent int64
	index := 0
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := io.ReadFull(file.Reader, buf)
		if n > 0 {
			chunk := domain.FileChunk{ID: id, Index: index, Data: append([]byte(nil), buf[:n]...)}
			if sendErr := t.sender.SendControl(ctx, remoteID, chunk); sendErr != nil {
				return "", sendErr
			}
			sent += int64(n)
			index++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	if sent != file.Size {
		return "", fmt.Errorf("%w: declared %d bytes, read %d", domain.ErrTransferSizeMismatch, file.Size, sent)
	}

	if err := t.sender.SendControl(ctx, remoteID, domain.FileComplete{ID: id, TotalChunks: index}); err != nil {
		return "", err
	}

	t.logger.Infow("file sent",
		"transfer_id", id,
		"remote_id", remoteID,
		"name", file.Name,
		"bytes", sent,
		"chunks", index,
	)
	return id, nil
}

// HandleMeta opens an inbound transfer. The sender identity comes from
// the link the frame arrived on, not from the frame itself.
func (t *TransferService) HandleMeta(from domain.ParticipantID, meta domain.FileMeta) error {
	if meta.ID == "" || meta.Size < 0 {
		return domain.ErrMalformedFrame
	}
	meta.FromID = from

	t.mu.Lock()
	defer t.mu.Unlock()

	// A re-announced id supersedes the in-flight transfer: the sender
	// restarted, so the stale chunks are worthless.
	if _, exists := t.transfers[meta.ID]; exists {
		t.logger.Warnw("duplicate transfer id, replacing in-flight state",
			"transfer_id", meta.ID,
			"remote_id", from,
		)
	}

	now := t.nowFn()
	t.transfers[meta.ID] = &inboundTransfer{
		from: from,
		state: domain.FileTransferState{
			ID:           meta.ID,
			Meta:         meta,
			Chunks:       make(map[int][]byte),
			StartedAt:    now,
			LastActivity: now,
		},
	}

	t.logger.Infow("inbound transfer opened",
		"transfer_id", meta.ID,
		"from", from,
		"name", meta.Name,
		"bytes", meta.Size,
	)
	return nil
}

// HandleChunk stores one chunk by index. A repeated index replaces the
// earlier copy; content growing past the declared size aborts the
// transfer.
func (t *TransferService) HandleChunk(chunk domain.FileChunk) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.transfers[chunk.ID]
	if !ok {
		return domain.ErrTransferNotFound
	}

	if prev, dup := tr.state.Chunks[chunk.Index]; dup {
		tr.state.ReceivedBytes -= int64(len(prev))
	}
	tr.state.Chunks[chunk.Index] = chunk.Data
	tr.state.ReceivedBytes += int64(len(chunk.Data))
	tr.state.LastActivity = t.nowFn()

	if tr.state.ReceivedBytes > tr.state.Meta.Size {
		delete(t.transfers, chunk.ID)
		t.logger.Warnw("inbound transfer aborted, content exceeds declared size",
			"transfer_id", chunk.ID,
			"declared", tr.state.Meta.Size,
			"received", tr.state.ReceivedBytes,
		)
		return domain.ErrTransferSizeMismatch
	}
	return nil
}

// HandleComplete validates the chunk set and reassembles the file. On
// any mismatch the transfer is dropped; completion is not retryable.
func (t *TransferService) HandleComplete(complete domain.FileComplete) (domain.ReceivedFile, error) {
	t.mu.Lock()
	tr, ok := t.transfers[complete.ID]
	if ok {
		delete(t.transfers, complete.ID)
	}
	t.mu.Unlock()

	if !ok {
		return domain.ReceivedFile{}, domain.ErrTransferNotFound
	}

	if len(tr.state.Chunks) != complete.TotalChunks {
		return domain.ReceivedFile{}, fmt.Errorf("%w: have %d of %d chunks",
			domain.ErrTransferIncomplete, len(tr.state.Chunks), complete.TotalChunks)
	}

	data := make([]byte, 0, tr.state.ReceivedBytes)
	for i := 0; i < complete.TotalChunks; i++ {
		part, present := tr.state.Chunks[i]
		if !present {
			return domain.ReceivedFile{}, fmt.Errorf("%w: missing chunk %d", domain.ErrTransferIncomplete, i)
		}
		data = append(data, part...)
	}

	if int64(len(data)) != tr.state.Meta.Size {
		return domain.ReceivedFile{}, fmt.Errorf("%w: declared %d bytes, assembled %d",
			domain.ErrTransferSizeMismatch, tr.state.Meta.Size, len(data))
	}

	received := domain.ReceivedFile{
		Meta:   tr.state.Meta,
		Data:   data,
		Chunks: complete.TotalChunks,
	}

	if t.downloadDir != "" {
		path, err := t.spool(received)
		if err != nil {
			return domain.ReceivedFile{}, err
		}
		received.Path = path
		received.Data = nil
	}

	t.logger.Infow("inbound transfer complete",
		"transfer_id", complete.ID,
		"from", tr.from,
		"name", tr.state.Meta.Name,
		"bytes", tr.state.Meta.Size,
		"path", received.Path,
	)

	for _, fn := range t.onReceived {
		fn(received)
	}
	return received, nil
}

func (t *TransferService) spool(file domain.ReceivedFile) (string, error) {
	if err := os.MkdirAll(t.downloadDir, 0o755); err != nil {
		return "", err
	}
	name := utils.SanitizeFilename(file.Meta.Name)
	path := filepath.Join(t.downloadDir, fmt.Sprintf("%s_%s", file.Meta.ID, name))
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Progress lists inbound transfers still being assembled.
func (t *TransferService) Progress() []domain.TransferProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.TransferProgress, 0, len(t.transfers))
	for _, tr := range t.transfers {
		out = append(out, domain.TransferProgress{
			ID:            tr.state.ID,
			Name:          tr.state.Meta.Name,
			FromID:        tr.from,
			ReceivedBytes: tr.state.ReceivedBytes,
			TotalBytes:    tr.state.Meta.Size,
			Chunks:        len(tr.state.Chunks),
			StartedAt:     tr.state.StartedAt,
			LastActivity:  tr.state.LastActivity,
		})
	}
	return out
}

// DropFrom discards all inbound transfers from one remote, used when
// its link goes away.
func (t *TransferService) DropFrom(remoteID domain.ParticipantID) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for id, tr := range t.transfers {
		if tr.from == remoteID {
			delete(t.transfers, id)
			dropped++
		}
	}
	return dropped
}

// StartSweeper runs periodic eviction until the context ends.
func (t *TransferService) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// Sweep evicts transfers idle past the TTL and returns how many were
// dropped.
func (t *TransferService) Sweep() int {
	cutoff := t.nowFn().Add(-t.ttl)

	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for id, tr := range t.transfers {
		if tr.state.LastActivity.Before(cutoff) {
			delete(t.transfers, id)
			dropped++
			t.logger.Warnw("evicted stale inbound transfer",
				"transfer_id", id,
				"from", tr.from,
				"name", tr.state.Meta.Name,
				"received_bytes", tr.state.ReceivedBytes,
			)
		}
	}
	return dropped
}
