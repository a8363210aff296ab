package core

import "context"

// Usecase is a generic execute-one-thing contract.
type Usecase[T any] interface {
	Execute(ctx context.Context) (T, error)
}
