package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"seatwarden/internal/config"
	"seatwarden/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permReadAvailability = "read:availability"
	permWriteHolds       = "write:holds"
	permWriteBookings    = "write:bookings"
	permManageInventory  = "manage:inventory"
	permReadHealth       = "read:health"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
	errRateLimited        = errors.New("rate limit exceeded")
)

// clientRegistry resolves API keys to configured clients. It is shared by the
// HTTP middleware and the gRPC interceptors.
type clientRegistry struct {
	headerAPIKey string
	headerExtra  string
	clients      map[string]config.APIClientKey
}

func newClientRegistry(cfg config.APIAuthConfig) *clientRegistry {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	apiKeyHeader := strings.ToLower(strings.TrimSpace(cfg.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}
	return &clientRegistry{headerAPIKey: apiKeyHeader, headerExtra: extraHeader, clients: m}
}

// authenticate checks the key pair and the permission required by the call.
func (r *clientRegistry) authenticate(apiKey, extra, required string) (config.APIClientKey, error) {
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}
	client, ok := r.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	if !hasPermission(client, required) {
		return config.APIClientKey{}, errPermissionDenied
	}
	return client, nil
}

// hasPermission treats an empty permission list as allow-all.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func actorFor(client config.APIClientKey) domain.Actor {
	name := client.Name
	if name == "" {
		name = maskKey(client.Key)
	}
	return domain.Actor{Client: name, Tenant: client.Tenant}
}

// maskKey keeps enough of a key to tell callers apart in audit columns.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "key:****"
	}
	return "key:" + key[:4] + "****"
}

type AuthInterceptor struct {
	cfg      *config.APIConfig
	registry *clientRegistry
	limiter  *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return newAuthInterceptor(cfg, newRateLimiter(cfg.RateLimit))
}

func newAuthInterceptor(cfg *config.APIConfig, limiter *rateLimiter) *AuthInterceptor {
	return &AuthInterceptor{
		cfg:      cfg,
		registry: newClientRegistry(cfg.Auth),
		limiter:  limiter,
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := a.admit(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if _, err := a.admit(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// admit authenticates and rate limits a call, returning a context that
// carries the caller as the audit actor.
func (a *AuthInterceptor) admit(ctx context.Context, fullMethod string) (context.Context, error) {
	if !a.cfg.Enabled {
		return ctx, nil
	}

	if a.cfg.Auth.Enabled {
		client, err := a.checkAuth(ctx, fullMethod)
		if err != nil {
			return ctx, err
		}
		ctx = domain.WithActor(ctx, actorFor(client))
	}
	if !a.limiter.allow(a.clientKey(ctx)) {
		return ctx, status.Error(codes.ResourceExhausted, errRateLimited.Error())
	}
	return ctx, nil
}

func (a *AuthInterceptor) checkAuth(ctx context.Context, fullMethod string) (config.APIClientKey, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return config.APIClientKey{}, status.Error(codes.Unauthenticated, "missing metadata")
	}

	client, err := a.registry.authenticate(
		first(md.Get(a.registry.headerAPIKey)),
		first(md.Get(a.registry.headerExtra)),
		requiredPermission(fullMethod),
	)
	switch {
	case errors.Is(err, errPermissionDenied):
		return client, status.Error(codes.PermissionDenied, err.Error())
	case err != nil:
		return client, status.Error(codes.Unauthenticated, err.Error())
	}
	return client, nil
}

func requiredPermission(fullMethod string) string {
	switch {
	case strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/"):
		return permReadHealth
	case strings.HasPrefix(fullMethod, "/grpc.reflection."):
		return permManageInventory
	default:
		return ""
	}
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.registry.headerAPIKey)); apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
