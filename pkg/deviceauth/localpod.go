package deviceauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/podexhq/coordinator/internal/coreerrors"
)

// LocalPodTokenPrefix starts every LocalPod shared-secret bearer token.
// The handshake authenticator chooses between the pod-token and JWT
// paths by namespace and does not check this prefix.
const LocalPodTokenPrefix = "podex_pod_"

// LocalPod is a self-hosted agent host authenticated by a
// shared-secret token, hashed at rest with bcrypt.
type LocalPod struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func localPodKey(id string) string { return fmt.Sprintf("podex:localpod:%s", id) }

// NewLocalPodToken generates a fresh LocalPod bearer token and its
// bcrypt hash. The raw token is shown to the user exactly once, at
// enrollment time.
func NewLocalPodToken() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("reading random bytes: %w", err)
	}
	raw = LocalPodTokenPrefix + base64.RawURLEncoding.EncodeToString(b)

	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing pod token: %w", err)
	}
	return raw, string(h), nil
}

// LocalPodStore persists LocalPod records keyed by id. Lookup by raw
// token requires a full scan of a user's pods since bcrypt hashes are
// not comparable by prefix; callers are expected to pass the claimed
// pod id alongside the bearer token (e.g. as a path segment or a
// claim), matching how the reverse-RPC hub already keys connections
// by pod id.
type LocalPodStore struct {
	rdb *redis.Client
}

func NewLocalPodStore(rdb *redis.Client) *LocalPodStore {
	return &LocalPodStore{rdb: rdb}
}

// Enroll registers a new LocalPod for userID and returns the raw
// token to hand back to the caller once.
func (s *LocalPodStore) Enroll(ctx context.Context, userID, name string) (LocalPod, string, error) {
	raw, hash, err := NewLocalPodToken()
	if err != nil {
		return LocalPod{}, "", coreerrors.Fatal(err, "generating local pod token")
	}

	pod := LocalPod{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		Name:      name,
		CreatedAt: time.Now(),
	}
	b, err := json.Marshal(pod)
	if err != nil {
		return LocalPod{}, "", coreerrors.Validation("serializing local pod: %v", err)
	}
	if err := s.rdb.Set(ctx, localPodKey(pod.ID), b, 0).Err(); err != nil {
		return LocalPod{}, "", coreerrors.Transport(err, "persisting local pod %s", pod.ID)
	}
	return pod, raw, nil
}

// Get fetches a LocalPod by id.
func (s *LocalPodStore) Get(ctx context.Context, podID string) (LocalPod, bool, error) {
	raw, err := s.rdb.Get(ctx, localPodKey(podID)).Bytes()
	if err == redis.Nil {
		return LocalPod{}, false, nil
	}
	if err != nil {
		return LocalPod{}, false, coreerrors.Transport(err, "fetching local pod %s", podID)
	}
	var pod LocalPod
	if err := json.Unmarshal(raw, &pod); err != nil {
		return LocalPod{}, false, coreerrors.Fatal(err, "corrupt local pod record %s", podID)
	}
	return pod, true, nil
}

// Verify checks a raw bearer token against podID's stored hash.
func (s *LocalPodStore) Verify(ctx context.Context, podID, rawToken string) (LocalPod, error) {
	pod, ok, err := s.Get(ctx, podID)
	if err != nil {
		return LocalPod{}, err
	}
	if !ok {
		return LocalPod{}, coreerrors.Auth("unknown local pod %s", podID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(pod.TokenHash), []byte(rawToken)); err != nil {
		return LocalPod{}, coreerrors.Auth("invalid local pod token")
	}
	return pod, nil
}

// Revoke deletes a LocalPod's enrollment, invalidating its token
// immediately.
func (s *LocalPodStore) Revoke(ctx context.Context, podID string) error {
	if err := s.rdb.Del(ctx, localPodKey(podID)).Err(); err != nil {
		return coreerrors.Transport(err, "revoking local pod %s", podID)
	}
	return nil
}
