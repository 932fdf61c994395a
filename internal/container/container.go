// Package container provides dependency injection capabilities for the application.
package container

import (
	"context"
	"fmt"
	"sync"
)

// Container represents a dependency injection container
type Container interface {
	Register(name string, factory Factory) error
	RegisterSingleton(name string, factory Factory) error
	Resolve(name string) (interface{}, error)
	ResolveWithContext(ctx context.Context, name string) (interface{}, error)
	Has(name string) bool
}

// Factory is a function that creates an instance of a dependency
type Factory func(ctx context.Context, c Container) (interface{}, error)

// ServiceRegistration represents a registered service
type ServiceRegistration struct {
	Factory   Factory
	Singleton bool
	Instance  interface{}
	err       error
	once      sync.Once
}

// DIContainer is the default implementation of Container
type DIContainer struct {
	mu       sync.RWMutex
	services map[string]*ServiceRegistration
}

// NewContainer creates a new dependency injection container
func NewContainer() *DIContainer {
	return &DIContainer{
		services: make(map[string]*ServiceRegistration),
	}
}

// Register registers a factory for a named service
func (c *DIContainer) Register(name string, factory Factory) error {
	return c.register(name, factory, false)
}

// RegisterSingleton registers a singleton factory for a named service
func (c *DIContainer) RegisterSingleton(name string, factory Factory) error {
	return c.register(name, factory, true)
}

func (c *DIContainer) register(name string, factory Factory, singleton bool) error {
	if factory == nil {
		return NewDependencyError("NIL_FACTORY", "nil factory for service: "+name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.services[name]; exists {
		return NewDependencyError("DUPLICATE_SERVICE", "service already registered: "+name)
	}

	c.services[name] = &ServiceRegistration{
		Factory:   factory,
		Singleton: singleton,
	}

	return nil
}

// Resolve resolves a dependency by name
func (c *DIContainer) Resolve(name string) (interface{}, error) {
	return c.ResolveWithContext(context.Background(), name)
}

// ResolveWithContext resolves a dependency by name with context.
// A singleton whose factory failed keeps returning that error.
func (c *DIContainer) ResolveWithContext(ctx context.Context, name string) (interface{}, error) {
	c.mu.RLock()
	registration, exists := c.services[name]
	c.mu.RUnlock()

	if !exists {
		return nil, NewDependencyError("SERVICE_NOT_FOUND", "service not registered: "+name)
	}

	if registration.Singleton {
		registration.once.Do(func() {
			registration.Instance, registration.err = registration.Factory(ctx, c)
		})
		return registration.Instance, registration.err
	}

	return registration.Factory(ctx, c)
}

// Has checks if a service is registered
func (c *DIContainer) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.services[name]
	return exists
}

// ResolveAs resolves name and asserts it to T.
func ResolveAs[T any](ctx context.Context, c Container, name string) (T, error) {
	var zero T

	instance, err := c.ResolveWithContext(ctx, name)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, NewDependencyError("TYPE_MISMATCH",
			fmt.Sprintf("service %s is %T, not %T", name, instance, zero))
	}
	return typed, nil
}

// DependencyError represents a dependency injection error
type DependencyError struct {
	Code    string
	Message string
}

// Error implements the error interface
func (e *DependencyError) Error() string {
	return e.Code + ": " + e.Message
}

// NewDependencyError creates a new dependency error
func NewDependencyError(code, message string) *DependencyError {
	return &DependencyError{
		Code:    code,
		Message: message,
	}
}
