package interceptors

import (
	"context"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AddressHeader selects the bus address a gateway call is sent to.
const AddressHeader = "x-persistor-address"

// Address returns the address named in the incoming metadata, or fallback.
func Address(ctx context.Context, fallback string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(AddressHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return fallback
}

// UnaryAddressInterceptor rejects calls whose address header is not a valid
// bus address. validate must have the bus_address validator registered.
func UnaryAddressInterceptor(validate *validator.Validate) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := checkAddress(ctx, validate); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func StreamAddressInterceptor(validate *validator.Validate) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkAddress(ss.Context(), validate); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func checkAddress(ctx context.Context, validate *validator.Validate) error {
	addr := Address(ctx, "")
	if addr == "" {
		return nil
	}
	if err := validate.Var(addr, "bus_address"); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid %s: %q", AddressHeader, addr)
	}
	return nil
}
