package bootstrap

import "context"

// Storage is handed to seeders and service providers: the *sqlx.DB when a
// database is configured, nil otherwise. Modules type-assert what they need.
type Storage any

// Seeder installs reference rows once migrations have run.
type Seeder interface {
	Seed(ctx context.Context, storage Storage) error
}

type SeederFunc func(ctx context.Context, storage Storage) error

func (f SeederFunc) Seed(ctx context.Context, storage Storage) error {
	return f(ctx, storage)
}

// ServiceProvider builds the long-lived services. It runs last and its
// result lands in Result.Services.
type ServiceProvider interface {
	Provide(ctx context.Context, storage Storage) (any, error)
}

// Provider is a ServiceProvider function with a typed result, so the
// caller holding it keeps the type.
type Provider[T any] func(ctx context.Context, storage Storage) (T, error)

func (f Provider[T]) Provide(ctx context.Context, storage Storage) (any, error) {
	return f(ctx, storage)
}

// Modules are the steps run once storage is ready: seeders in order, then
// the service provider.
type Modules struct {
	Seeders  []Seeder
	Services ServiceProvider
}
