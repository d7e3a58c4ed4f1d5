// Package redis provides a SessionStore backed by Redis hashes and lists.
// App and user scopes live in shared hashes so they are visible across
// sessions (and, for app scope, across users); the committed event log is an
// RPUSH list per session. Temp-scoped state is never written.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentkit/core"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agentkit"

// Store implements core.SessionStore on a redis client. All writes of one
// commit go through a single TxPipeline so a delta and its event land
// together. A per-session mutex additionally serializes concurrent
// AppendEvent calls from one process.
type Store struct {
	rdb  *redis.Client
	muxs sync.Map // session key -> *sync.Mutex
}

// NewStore wraps an existing client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// NewStoreFromURL connects using a redis URL such as
// "redis://localhost:6379/0".
func NewStoreFromURL(url string) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewStore(redis.NewClient(opt)), nil
}

func appKey(appName string) string {
	return fmt.Sprintf("%s:app:%s", keyPrefix, appName)
}

func userStateKey(appName, userID string) string {
	return fmt.Sprintf("%s:user:%s:%s", keyPrefix, appName, userID)
}

func sessionIDsKey(appName, userID string) string {
	return fmt.Sprintf("%s:sessions:%s:%s", keyPrefix, appName, userID)
}

func sessionMetaKey(appName, userID, sessionID string) string {
	return fmt.Sprintf("%s:sess:%s:%s:%s:meta", keyPrefix, appName, userID, sessionID)
}

func sessionStateKey(appName, userID, sessionID string) string {
	return fmt.Sprintf("%s:sess:%s:%s:%s:state", keyPrefix, appName, userID, sessionID)
}

func sessionEventsKey(appName, userID, sessionID string) string {
	return fmt.Sprintf("%s:sess:%s:%s:%s:events", keyPrefix, appName, userID, sessionID)
}

func (s *Store) sessionMutex(appName, userID, sessionID string) *sync.Mutex {
	mu, _ := s.muxs.LoadOrStore(sessionMetaKey(appName, userID, sessionID), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create allocates a new session and routes initialState to the scope
// partitions. HSetNX on the meta hash doubles as the existence check, so two
// racing creates of the same id cannot both succeed.
func (s *Store) Create(ctx context.Context, appName, userID, sessionID string, initialState map[string]any) (*core.Session, error) {
	if err := core.ValidateStateDelta(initialState); err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	created, err := s.rdb.HSetNX(ctx, sessionMetaKey(appName, userID, sessionID), "created_at", now).Result()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !created {
		return nil, core.ErrSessionExists
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, sessionMetaKey(appName, userID, sessionID), "updated_at", now)
	pipe.SAdd(ctx, sessionIDsKey(appName, userID), sessionID)
	if err := stageDelta(ctx, pipe, appName, userID, sessionID, initialState); err != nil {
		return nil, err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return s.Get(ctx, appName, userID, sessionID)
}

// Get returns the merged session view or core.ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, appName, userID, sessionID string) (*core.Session, error) {
	meta, err := s.rdb.HGetAll(ctx, sessionMetaKey(appName, userID, sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(meta) == 0 {
		return nil, core.ErrSessionNotFound
	}

	sess := core.NewSession(appName, userID, sessionID)
	if ts, ok := meta["updated_at"]; ok {
		sess.LastUpdateTime, _ = time.Parse(time.RFC3339Nano, ts)
	}

	if err := s.loadHash(ctx, appKey(appName), core.StatePrefixApp, sess); err != nil {
		return nil, err
	}
	if err := s.loadHash(ctx, userStateKey(appName, userID), core.StatePrefixUser, sess); err != nil {
		return nil, err
	}
	if err := s.loadHash(ctx, sessionStateKey(appName, userID, sessionID), "", sess); err != nil {
		return nil, err
	}

	payloads, err := s.rdb.LRange(ctx, sessionEventsKey(appName, userID, sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for _, payload := range payloads {
		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		sess.Events = append(sess.Events, ev)
	}

	return sess, nil
}

// List returns the session ids existing for (appName, userID).
func (s *Store) List(ctx context.Context, appName, userID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, sessionIDsKey(appName, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// Delete removes a session, its events and its session-scoped state. App and
// user scoped hashes survive.
func (s *Store) Delete(ctx context.Context, appName, userID, sessionID string) error {
	exists, err := s.rdb.Exists(ctx, sessionMetaKey(appName, userID, sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if exists == 0 {
		return core.ErrSessionNotFound
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx,
		sessionMetaKey(appName, userID, sessionID),
		sessionStateKey(appName, userID, sessionID),
		sessionEventsKey(appName, userID, sessionID),
	)
	pipe.SRem(ctx, sessionIDsKey(appName, userID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.muxs.Delete(sessionMetaKey(appName, userID, sessionID))
	return nil
}

// AppendEvent validates and commits an event: delta routed to the scope
// hashes, event RPUSHed onto the log, session timestamp bumped, all in one
// pipeline. Partial events are validated but never committed.
func (s *Store) AppendEvent(ctx context.Context, sess *core.Session, ev core.Event) (*core.Session, error) {
	if err := core.ValidateStateDelta(ev.Actions.StateDelta); err != nil {
		return nil, err
	}
	if ev.IsPartial() {
		return sess, nil
	}

	mu := s.sessionMutex(sess.AppName, sess.UserID, sess.ID)
	mu.Lock()
	defer mu.Unlock()

	exists, err := s.rdb.Exists(ctx, sessionMetaKey(sess.AppName, sess.UserID, sess.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	if exists == 0 {
		return nil, core.ErrSessionNotFound
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.rdb.TxPipeline()
	if err := stageDelta(ctx, pipe, sess.AppName, sess.UserID, sess.ID, ev.Actions.StateDelta); err != nil {
		return nil, err
	}
	pipe.RPush(ctx, sessionEventsKey(sess.AppName, sess.UserID, sess.ID), string(payload))
	pipe.HSet(ctx, sessionMetaKey(sess.AppName, sess.UserID, sess.ID), "updated_at", now)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	sess.ApplyCommittedDelta(ev.Actions.StateDelta)
	sess.AppendCommittedEvent(ev)

	return sess, nil
}

// stageDelta queues HSet/HDel commands for an already-validated delta.
// Tombstones delete, temp keys are skipped.
func stageDelta(ctx context.Context, pipe redis.Pipeliner, appName, userID, sessionID string, delta map[string]any) error {
	for k, v := range delta {
		scope, rest, _ := core.SplitScopedKey(k)
		if scope == core.StateScopeTemp {
			continue
		}

		var hash string
		switch scope {
		case core.StateScopeApp:
			hash = appKey(appName)
		case core.StateScopeUser:
			hash = userStateKey(appName, userID)
		case core.StateScopeSession:
			hash = sessionStateKey(appName, userID, sessionID)
		}

		if core.IsTombstone(v) {
			pipe.HDel(ctx, hash, rest)
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode state %s: %w", k, err)
		}
		pipe.HSet(ctx, hash, rest, string(encoded))
	}
	return nil
}

// loadHash merges one scope hash into the session state under the given
// prefix.
func (s *Store) loadHash(ctx context.Context, hash, prefix string, sess *core.Session) error {
	fields, err := s.rdb.HGetAll(ctx, hash).Result()
	if err != nil {
		return fmt.Errorf("load %s: %w", hash, err)
	}
	for k, encoded := range fields {
		var value any
		if err := json.Unmarshal([]byte(encoded), &value); err != nil {
			return fmt.Errorf("decode state %s: %w", k, err)
		}
		sess.State[prefix+k] = value
	}
	return nil
}
