package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// FromMetadata continues the trace carried in incoming gRPC metadata.
func FromMetadata(md metadata.MD) Context {
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	return Continue(first(TraceIDKey), first(SpanIDKey))
}

// UnaryServerInterceptor attaches a trace to every unary call and logs the
// outcome at debug level.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		ctx = WithContext(ctx, FromMetadata(md))
		ctx, span := StartSpan(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			span.SetAttr("error", err.Error())
		}
		return resp, err
	}
}
