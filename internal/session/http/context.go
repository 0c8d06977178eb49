package http

import (
	"context"

	sessionUseCase "github.com/opsdash/dashgate/internal/session/usecase"
)

// useCaseKey is a context key type for storing the request's session use case.
type useCaseKey struct{}

// WithSessionUseCase stores the resolved session use case in the context.
// This is called by SessionMiddleware after cookie resolution.
func WithSessionUseCase(ctx context.Context, useCase sessionUseCase.SessionUseCase) context.Context {
	return context.WithValue(ctx, useCaseKey{}, useCase)
}

// GetSessionUseCase retrieves the request's session use case from the
// context. Returns (nil, false) when SessionMiddleware did not run.
func GetSessionUseCase(ctx context.Context) (sessionUseCase.SessionUseCase, bool) {
	useCase, ok := ctx.Value(useCaseKey{}).(sessionUseCase.SessionUseCase)
	return useCase, ok
}
