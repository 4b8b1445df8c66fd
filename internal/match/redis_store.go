package match

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/whispermatch/internal/models"
)

// Redis key layout. All state a second instance needs to honor the
// one-active-session invariant lives behind these keys.
const (
	redisSessionPrefix = "wm:session:" // hash of session fields
	redisMessagePrefix = "wm:msgs:"    // list of JSON messages
	redisActivePrefix  = "wm:active:"  // userID -> sessionID
	redisSessionIndex  = "wm:sessions" // set of session ids
)

// createScript claims both participants' active pointers and writes the
// session in one atomic unit; returns 0 without writing anything when
// either user is already claimed.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
if redis.call('EXISTS', KEYS[2]) == 1 then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[3],
  'participantA', ARGV[2],
  'participantB', ARGV[3],
  'state', 'ACTIVE',
  'createdAt', ARGV[4],
  'expiresAt', ARGV[5])
redis.call('SADD', KEYS[4], ARGV[1])
return 1
`)

// appendScript appends a message only while the session is ACTIVE
var appendScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -1 end
if state ~= 'ACTIVE' then return 0 end
redis.call('RPUSH', KEYS[2], ARGV[1])
local cap = tonumber(ARGV[2])
if cap > 0 then redis.call('LTRIM', KEYS[2], -cap, -1) end
return 1
`)

// terminalScript transitions ACTIVE -> terminal and releases both
// pointers, but only where they still reference this session
var terminalScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then return -1 end
if state ~= 'ACTIVE' then return 0 end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'endedAt', ARGV[2])
if redis.call('GET', KEYS[2]) == ARGV[3] then redis.call('DEL', KEYS[2]) end
if redis.call('GET', KEYS[3]) == ARGV[3] then redis.call('DEL', KEYS[3]) end
return 1
`)

// RedisSessionStore implements SessionStore on a shared Redis, for
// multi-instance deployments. The claim discipline runs server-side in
// Lua, so two instances can never pair the same user twice.
type RedisSessionStore struct {
	rdb        *redis.Client
	messageCap int
}

// NewRedisSessionStore wraps an existing client
func NewRedisSessionStore(rdb *redis.Client, messageCap int) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, messageCap: messageCap}
}

func activeKey(userID string) string { return redisActivePrefix + userID }

func sessionKey(sessionID string) string { return redisSessionPrefix + sessionID }

func messageKey(sessionID string) string { return redisMessagePrefix + sessionID }

func (s *RedisSessionStore) CreateSession(ctx context.Context, sess *models.MatchSession) error {
	keys := []string{
		activeKey(sess.ParticipantA),
		activeKey(sess.ParticipantB),
		sessionKey(sess.ID),
		redisSessionIndex,
	}
	res, err := createScript.Run(ctx, s.rdb, keys,
		sess.ID,
		sess.ParticipantA,
		sess.ParticipantB,
		sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		sess.ExpiresAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return fmt.Errorf("redis create session: %w", err)
	}
	if res == 0 {
		return ErrUserBusy
	}
	return nil
}

func (s *RedisSessionStore) GetSession(ctx context.Context, sessionID string) (*models.MatchSession, error) {
	fields, err := s.rdb.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	sess, err := sessionFromHash(sessionID, fields)
	if err != nil {
		return nil, err
	}

	raw, err := s.rdb.LRange(ctx, messageKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get messages: %w", err)
	}
	sess.Messages = make([]models.MatchMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.MatchMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, nil
}

func (s *RedisSessionStore) GetActiveSessionForUser(ctx context.Context, userID string) (*models.MatchSession, error) {
	sessionID, err := s.rdb.Get(ctx, activeKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get active pointer: %w", err)
	}

	sess, err := s.GetSession(ctx, sessionID)
	if err == ErrSessionNotFound {
		// Dangling pointer from an evicted session; self-heal
		s.rdb.Del(ctx, activeKey(userID))
		return nil, nil
	}
	return sess, err
}

func (s *RedisSessionStore) AppendMessage(ctx context.Context, sessionID string, msg models.MatchMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	keys := []string{sessionKey(sessionID), messageKey(sessionID)}
	res, err := appendScript.Run(ctx, s.rdb, keys, string(payload), s.messageCap).Int()
	if err != nil {
		return fmt.Errorf("redis append message: %w", err)
	}
	switch res {
	case -1:
		return ErrSessionNotFound
	case 0:
		return ErrSessionNotActive
	}
	return nil
}

func (s *RedisSessionStore) MarkTerminal(ctx context.Context, sessionID string, state models.SessionState, endedAt time.Time) (bool, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrSessionNotFound {
			return false, ErrSessionNotFound
		}
		return false, err
	}

	keys := []string{
		sessionKey(sessionID),
		activeKey(sess.ParticipantA),
		activeKey(sess.ParticipantB),
	}
	res, err := terminalScript.Run(ctx, s.rdb, keys,
		string(state),
		endedAt.UTC().Format(time.RFC3339Nano),
		sessionID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis mark terminal: %w", err)
	}
	return res == 1, nil
}

func (s *RedisSessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) ([]*models.MatchSession, error) {
	ids, err := s.rdb.SMembers(ctx, redisSessionIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session index: %w", err)
	}

	var evicted []*models.MatchSession
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err == ErrSessionNotFound {
			s.rdb.SRem(ctx, redisSessionIndex, id)
			continue
		}
		if err != nil {
			return evicted, err
		}
		if !sess.State.Terminal() || sess.EndedAt == nil || sess.EndedAt.After(cutoff) {
			continue
		}
		if err := s.rdb.Del(ctx, sessionKey(id), messageKey(id)).Err(); err != nil {
			return evicted, fmt.Errorf("redis evict session: %w", err)
		}
		s.rdb.SRem(ctx, redisSessionIndex, id)
		evicted = append(evicted, sess)
	}
	return evicted, nil
}

func (s *RedisSessionStore) ListSessions(ctx context.Context) ([]*models.MatchSession, error) {
	ids, err := s.rdb.SMembers(ctx, redisSessionIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session index: %w", err)
	}

	out := make([]*models.MatchSession, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err == ErrSessionNotFound {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func sessionFromHash(sessionID string, fields map[string]string) (*models.MatchSession, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("session %s: bad createdAt: %w", sessionID, err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expiresAt"])
	if err != nil {
		return nil, fmt.Errorf("session %s: bad expiresAt: %w", sessionID, err)
	}

	sess := &models.MatchSession{
		ID:           sessionID,
		ParticipantA: fields["participantA"],
		ParticipantB: fields["participantB"],
		State:        models.SessionState(fields["state"]),
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
	}
	if raw := fields["endedAt"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			sess.EndedAt = &t
		}
	}
	return sess, nil
}
