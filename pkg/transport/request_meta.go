package transport

import "context"

// RequestMeta travels in the request context so outbound vendor calls can be
// attributed to the upload session that caused them.
type RequestMeta struct {
	SessionID string
	Filename  string
	Page      int
}

type requestMetaKey struct{}

var ctxRequestMetaKey = &requestMetaKey{}

// WithRequestMeta merges the provided meta into any existing meta on ctx.
// Zero values do not overwrite existing values.
func WithRequestMeta(ctx context.Context, add RequestMeta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	cur := RequestMetaFromContext(ctx)

	if add.SessionID != "" {
		cur.SessionID = add.SessionID
	}
	if add.Filename != "" {
		cur.Filename = add.Filename
	}
	if add.Page != 0 {
		cur.Page = add.Page
	}

	return context.WithValue(ctx, ctxRequestMetaKey, cur)
}

func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	m, ok := ctx.Value(ctxRequestMetaKey).(RequestMeta)
	if !ok {
		return RequestMeta{}
	}
	return m
}
