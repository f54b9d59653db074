package services

import (
	"context"
	"errors"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"go.uber.org/zap"
)

// connectionService fronts the link table with the quality, bitrate,
// and transfer machinery behind one surface.
type connectionService struct {
	links     ports.LinkManager
	monitor   *QualityMonitor
	bitrate   *BitrateController
	transfers *TransferService
	logger    *zap.SugaredLogger
}

func NewConnectionService(
	links ports.LinkManager,
	monitor *QualityMonitor,
	bitrate *BitrateController,
	transfers *TransferService,
	logger *zap.SugaredLogger,
) ports.ConnectionService {
	return &connectionService{
		links:     links,
		monitor:   monitor,
		bitrate:   bitrate,
		transfers: transfers,
		logger:    logger,
	}
}

func (s *connectionService) Connect(ctx context.Context, remoteID domain.ParticipantID) error {
	return s.links.Connect(ctx, remoteID)
}

func (s *connectionService) Disconnect(ctx context.Context, remoteID domain.ParticipantID) error {
	return s.links.Disconnect(ctx, remoteID)
}

func (s *connectionService) Links(_ context.Context) []domain.LinkSnapshot {
	return s.links.Links()
}

func (s *connectionService) Link(_ context.Context, remoteID domain.ParticipantID) (domain.LinkSnapshot, error) {
	return s.links.Link(remoteID)
}

func (s *connectionService) SetPreset(ctx context.Context, remoteID domain.ParticipantID, name domain.PresetName) error {
	if _, err := s.links.Link(remoteID); err != nil {
		return err
	}
	return s.bitrate.SetPreset(ctx, remoteID, name)
}

func (s *connectionService) ForcePreset(ctx context.Context, remoteID domain.ParticipantID, name domain.PresetName) error {
	if _, err := s.links.Link(remoteID); err != nil {
		return err
	}
	if err := s.bitrate.ForcePreset(ctx, remoteID, name); err != nil {
		return err
	}
	s.links.NoteAutoAdjust(remoteID, false)
	return nil
}

func (s *connectionService) SetAutoAdjust(_ context.Context, remoteID domain.ParticipantID, enabled bool) error {
	if err := s.bitrate.SetAuto(remoteID, enabled); err != nil {
		return err
	}
	s.links.NoteAutoAdjust(remoteID, enabled)
	return nil
}

func (s *connectionService) SendFile(ctx context.Context, remoteID domain.ParticipantID, file domain.OutgoingFile) (string, error) {
	snap, err := s.links.Link(remoteID)
	if err != nil {
		return "", err
	}
	if snap.State != domain.LinkStateConnected {
		return "", domain.ErrChannelNotOpen
	}
	return s.transfers.Send(ctx, remoteID, file)
}

// SendClipboard pushes the clipboard content to every connected remote.
func (s *connectionService) SendClipboard(ctx context.Context, content string) error {
	var errs []error
	for _, snap := range s.links.Links() {
		if snap.State != domain.LinkStateConnected {
			continue
		}
		msg := domain.Clipboard{Content: content}
		if err := s.links.SendControl(ctx, snap.RemoteID, msg); err != nil {
			s.logger.Warnw("clipboard push failed", "remote_id", snap.RemoteID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *connectionService) QualityHistory(_ context.Context, remoteID domain.ParticipantID) ([]domain.QualityMetrics, error) {
	return s.monitor.History(remoteID)
}

func (s *connectionService) ActiveTransfers(_ context.Context) []domain.TransferProgress {
	return s.transfers.Progress()
}
