package deviceauth

import (
	"context"
	"strings"

	"github.com/podexhq/coordinator/internal/coreerrors"
	"github.com/podexhq/coordinator/pkg/realtime"
)

// Authenticator resolves a handshake bearer credential to a caller
// identity, implementing pkg/realtime.Authenticator. The /local-pod
// namespace is authenticated by LocalPod shared-secret token; every
// other namespace by a device-session access JWT.
type Authenticator struct {
	tokens    *TokenManager
	blacklist *Blacklist
	pods      *LocalPodStore
}

func NewAuthenticator(tokens *TokenManager, blacklist *Blacklist, pods *LocalPodStore) *Authenticator {
	return &Authenticator{tokens: tokens, blacklist: blacklist, pods: pods}
}

var _ realtime.Authenticator = (*Authenticator)(nil)

// Authenticate implements realtime.Authenticator.
func (a *Authenticator) Authenticate(namespace realtime.Namespace, bearerToken string) (realtime.Identity, error) {
	if namespace == realtime.NamespaceLocalPod {
		return a.authenticatePod(bearerToken)
	}
	return a.authenticateUser(bearerToken)
}

// authenticatePod expects bearerToken in the form "<pod-id>.<raw
// shared secret>", the convention a LocalPod's agent process uses
// when dialing the reverse-RPC hub.
func (a *Authenticator) authenticatePod(bearerToken string) (realtime.Identity, error) {
	podID, raw, ok := strings.Cut(bearerToken, ".")
	if !ok || podID == "" || raw == "" {
		return realtime.Identity{}, coreerrors.Auth("malformed local pod credential")
	}
	pod, err := a.pods.Verify(context.Background(), podID, raw)
	if err != nil {
		return realtime.Identity{}, err
	}
	return realtime.Identity{PodID: pod.ID, UserID: pod.UserID}, nil
}

func (a *Authenticator) authenticateUser(bearerToken string) (realtime.Identity, error) {
	claims, err := a.tokens.Validate(bearerToken)
	if err != nil {
		return realtime.Identity{}, coreerrors.Auth("invalid session token: %v", err)
	}
	if claims.Kind != "access" {
		return realtime.Identity{}, coreerrors.Auth("refresh token not valid for handshake auth")
	}
	revoked, err := a.blacklist.IsRevoked(context.Background(), claims.JTI)
	if err != nil {
		return realtime.Identity{}, err
	}
	if revoked {
		return realtime.Identity{}, coreerrors.Auth("session token revoked")
	}
	return realtime.Identity{UserID: claims.Subject}, nil
}
