package deviceauth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

// SessionStore persists DeviceSessions and the per-user index needed
// to enumerate and bulk-revoke a user's devices. Session rows are
// relational data in the original system; here they live in Redis
// alongside everything else this coordinator owns, since the
// relational schema itself is out of scope.
type SessionStore struct {
	rdb       *redis.Client
	blacklist *Blacklist
}

func NewSessionStore(rdb *redis.Client, blacklist *Blacklist) *SessionStore {
	return &SessionStore{rdb: rdb, blacklist: blacklist}
}

// Create materializes a new DeviceSession for an authorized device
// code exchange.
func (s *SessionStore) Create(ctx context.Context, userID, refreshJTI string, info DeviceInfo) (DeviceSession, error) {
	now := time.Now()
	ds := DeviceSession{
		ID:              uuid.NewString(),
		UserID:          userID,
		DeviceType:      info.DeviceType,
		DeviceName:      info.DeviceName,
		RefreshTokenJTI: refreshJTI,
		IP:              info.IP,
		UA:              info.UA,
		OS:              info.OS,
		Browser:         info.Browser,
		GeoCity:         info.GeoCity,
		GeoCountry:      info.GeoCountry,
		LastActiveAt:    now,
		ExpiresAt:       now.Add(RefreshTokenTTL),
	}
	if err := s.put(ctx, ds); err != nil {
		return DeviceSession{}, err
	}
	if err := s.rdb.SAdd(ctx, userSessionsKey(userID), ds.ID).Err(); err != nil {
		return DeviceSession{}, coreerrors.Transport(err, "indexing session %s for user %s", ds.ID, userID)
	}
	return ds, nil
}

func (s *SessionStore) put(ctx context.Context, ds DeviceSession) error {
	b, err := json.Marshal(ds)
	if err != nil {
		return coreerrors.Validation("serializing device session: %v", err)
	}
	ttl := time.Until(ds.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.rdb.Set(ctx, sessionKey(ds.ID), b, ttl).Err(); err != nil {
		return coreerrors.Transport(err, "persisting device session %s", ds.ID)
	}
	return nil
}

// Get fetches a single DeviceSession.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (DeviceSession, bool, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return DeviceSession{}, false, nil
	}
	if err != nil {
		return DeviceSession{}, false, coreerrors.Transport(err, "fetching device session %s", sessionID)
	}
	var ds DeviceSession
	if err := json.Unmarshal(raw, &ds); err != nil {
		return DeviceSession{}, false, coreerrors.Fatal(err, "corrupt device session record %s", sessionID)
	}
	return ds, true, nil
}

// List returns every non-expired DeviceSession for a user, for a
// "your devices" view.
func (s *SessionStore) List(ctx context.Context, userID string) ([]DeviceSession, error) {
	ids, err := s.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, coreerrors.Transport(err, "listing sessions for user %s", userID)
	}

	sessions := make([]DeviceSession, 0, len(ids))
	for _, id := range ids {
		ds, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Expired; drop the stale index entry.
			s.rdb.SRem(ctx, userSessionsKey(userID), id)
			continue
		}
		sessions = append(sessions, ds)
	}
	return sessions, nil
}

// Touch bumps a session's last_active_at on authenticated use.
func (s *SessionStore) Touch(ctx context.Context, sessionID string) error {
	ds, ok, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.NotFound("device session %s not found", sessionID)
	}
	ds.LastActiveAt = time.Now()
	return s.put(ctx, ds)
}

// Revoke revokes a single DeviceSession, blacklisting its refresh
// token JTI so the cascade is immediate.
func (s *SessionStore) Revoke(ctx context.Context, sessionID string) error {
	ds, ok, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerrors.NotFound("device session %s not found", sessionID)
	}
	if ds.IsRevoked {
		return nil
	}

	ttl := time.Until(ds.ExpiresAt)
	if err := s.blacklist.Revoke(ctx, ds.RefreshTokenJTI, ttl); err != nil {
		return err
	}
	ds.IsRevoked = true
	ds.RevokedAt = time.Now()
	return s.put(ctx, ds)
}

// RevokeAllExcept implements bulk session revocation, served as
// POST /auth/sessions/revoke-all with an optional keep_session_id body
// field; there is no DELETE /sessions route and no keep_current flag.
// Every DeviceSession belonging to userID other than keepSessionID is
// revoked and its refresh-token JTI blacklisted in one Redis pipeline.
func (s *SessionStore) RevokeAllExcept(ctx context.Context, userID, keepSessionID string) (int, error) {
	sessions, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}

	var jtis []string
	var toRevoke []DeviceSession
	for _, ds := range sessions {
		if ds.ID == keepSessionID || ds.IsRevoked {
			continue
		}
		jtis = append(jtis, ds.RefreshTokenJTI)
		toRevoke = append(toRevoke, ds)
	}
	if len(toRevoke) == 0 {
		return 0, nil
	}

	if err := s.blacklist.RevokePipelined(ctx, jtis, RefreshTokenTTL); err != nil {
		return 0, err
	}

	now := time.Now()
	for _, ds := range toRevoke {
		ds.IsRevoked = true
		ds.RevokedAt = now
		if err := s.put(ctx, ds); err != nil {
			return 0, err
		}
	}
	return len(toRevoke), nil
}
