package domain

import "context"

// Identity is the resolved authenticated identity produced by the
// authentication middleware. The core never parses tokens; it consumes
// this struct as an explicit argument.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	AccountID string
}

// IsZero reports whether no identity was resolved (anonymous request).
func (id Identity) IsZero() bool {
	return id.UserID == "" && id.Email == "" && id.Role == "" && id.AccountID == ""
}

// RequestMeta carries per-request metadata contributed by the transport
// layer and recorded on audit entries.
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

type identityKey struct{}

type requestMetaKey struct{}

// WithIdentity stores an Identity in the context. This exists for the
// authentication middleware's convenience; core services take the
// Identity as an explicit parameter.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the Identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// WithRequestMeta stores request metadata in the context.
func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// RequestMetaFromContext extracts request metadata from the context.
func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	m, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return m, ok
}
