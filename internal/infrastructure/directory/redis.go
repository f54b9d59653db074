package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const activeSessionsKey = "desklink:sessions:active"

// RedisDirectory shares session membership between relay instances.
// Participant records carry a TTL refreshed by Touch, so a crashed
// agent ages out even if its relay never saw the disconnect.
type RedisDirectory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDirectory(client *redis.Client, ttl time.Duration) ports.SessionDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisDirectory{client: client, ttl: ttl}
}

func participantKey(sessionID domain.SessionID, id domain.ParticipantID) string {
	return fmt.Sprintf("desklink:session:%s:participant:%s", sessionID, id)
}

func membersKey(sessionID domain.SessionID) string {
	return fmt.Sprintf("desklink:session:%s:members", sessionID)
}

func (d *RedisDirectory) Register(ctx context.Context, participant *domain.Participant) error {
	stored := *participant
	if stored.LastSeen.IsZero() {
		stored.LastSeen = time.Now()
	}
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal participant: %w", err)
	}

	key := participantKey(participant.SessionID, participant.ID)
	if err := d.client.Set(ctx, key, data, d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set participant in Redis: %w", err)
	}
	if err := d.client.SAdd(ctx, membersKey(participant.SessionID), string(participant.ID)).Err(); err != nil {
		return fmt.Errorf("failed to add participant to members set: %w", err)
	}
	if err := d.client.SAdd(ctx, activeSessionsKey, string(participant.SessionID)).Err(); err != nil {
		return fmt.Errorf("failed to add session to active set: %w", err)
	}
	return nil
}

func (d *RedisDirectory) Deregister(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error {
	if err := d.client.SRem(ctx, membersKey(sessionID), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove participant from members set: %w", err)
	}
	deleted, err := d.client.Del(ctx, participantKey(sessionID, id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete participant from Redis: %w", err)
	}
	if deleted == 0 {
		return domain.ErrParticipantNotFound
	}

	remaining, err := d.client.SCard(ctx, membersKey(sessionID)).Result()
	if err == nil && remaining == 0 {
		d.client.SRem(ctx, activeSessionsKey, string(sessionID))
	}
	return nil
}

func (d *RedisDirectory) Get(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) (*domain.Participant, error) {
	data, err := d.client.Get(ctx, participantKey(sessionID, id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant from Redis: %w", err)
	}

	var participant domain.Participant
	if err := json.Unmarshal([]byte(data), &participant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participant: %w", err)
	}
	return &participant, nil
}

// Members resolves the member set, dropping IDs whose records expired.
func (d *RedisDirectory) Members(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	ids, err := d.client.SMembers(ctx, membersKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session members from Redis: %w", err)
	}

	members := make([]*domain.Participant, 0, len(ids))
	for _, id := range ids {
		participant, err := d.Get(ctx, sessionID, domain.ParticipantID(id))
		if err != nil {
			// Expired record; clean the stale set entry.
			d.client.SRem(ctx, membersKey(sessionID), id)
			continue
		}
		members = append(members, participant)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (d *RedisDirectory) Sessions(ctx context.Context) ([]domain.SessionID, error) {
	raw, err := d.client.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active sessions from Redis: %w", err)
	}
	ids := make([]domain.SessionID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, domain.SessionID(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Touch extends the participant record's TTL.
func (d *RedisDirectory) Touch(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error {
	ok, err := d.client.Expire(ctx, participantKey(sessionID, id), d.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh participant TTL: %w", err)
	}
	if !ok {
		return domain.ErrParticipantNotFound
	}
	return nil
}
