package service

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/allisson/credx/internal/errors"
	exchangeDomain "github.com/allisson/credx/internal/exchange/domain"
)

type registration struct {
	descriptor exchangeDomain.ProtocolDescriptor
	protocol   Protocol
}

// Registry holds protocol implementations keyed by name and gates dispatch on
// each protocol's declared operations. It never retries and never falls back.
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{protocols: make(map[string]registration)}
}

// Register adds protocol under descriptor.Name.
func (r *Registry) Register(descriptor exchangeDomain.ProtocolDescriptor, protocol Protocol) error {
	if descriptor.Name == "" || protocol == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "protocol name and implementation are required")
	}
	for _, op := range descriptor.SupportedOperations {
		if !op.Valid() {
			return apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown operation %q", op)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.protocols[descriptor.Name]; ok {
		return apperrors.Wrapf(exchangeDomain.ErrProtocolAlreadyRegistered, "%s", descriptor.Name)
	}
	descriptor.SupportedOperations = descriptor.Operations()
	r.protocols[descriptor.Name] = registration{descriptor: descriptor, protocol: protocol}
	return nil
}

// Unregister removes name and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.protocols[name]
	delete(r.protocols, name)
	return ok
}

// Get returns the implementation registered under name.
func (r *Registry) Get(name string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.protocols[name]
	return reg.protocol, ok
}

// Descriptor returns the descriptor registered under name.
func (r *Registry) Descriptor(name string) (exchangeDomain.ProtocolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.protocols[name]
	if !ok {
		return exchangeDomain.ProtocolDescriptor{}, false
	}
	return exchangeDomain.ProtocolDescriptor{
		Name:                reg.descriptor.Name,
		SupportedOperations: reg.descriptor.Operations(),
	}, true
}

// IsRegistered reports whether name is registered.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// ListNames returns the registered names in sorted order.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.protocols))
	for name := range r.protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns every registered descriptor sorted by name.
func (r *Registry) Descriptors() []exchangeDomain.ProtocolDescriptor {
	names := r.ListNames()
	out := make([]exchangeDomain.ProtocolDescriptor, 0, len(names))
	for _, name := range names {
		if d, ok := r.Descriptor(name); ok {
			out = append(out, d)
		}
	}
	return out
}

// Check validates that name is registered and declares op.
func (r *Registry) Check(name string, op exchangeDomain.Operation) error {
	d, ok := r.Descriptor(name)
	if !ok {
		return &exchangeDomain.ProtocolNotRegisteredError{Name: name, AvailableProtocols: r.ListNames()}
	}
	if !d.Supports(op) {
		return &exchangeDomain.OperationNotSupportedError{
			Name:                name,
			Operation:           op,
			SupportedOperations: d.SupportedOperations,
		}
	}
	return nil
}

// Dispatch forwards req to the protocol registered under name. The protocol's
// result or failure is relayed unchanged.
func (r *Registry) Dispatch(
	ctx context.Context,
	name string,
	op exchangeDomain.Operation,
	req *exchangeDomain.Request,
) (*exchangeDomain.Response, error) {
	if err := r.Check(name, op); err != nil {
		return nil, err
	}
	protocol, ok := r.Get(name)
	if !ok {
		return nil, &exchangeDomain.ProtocolNotRegisteredError{Name: name, AvailableProtocols: r.ListNames()}
	}
	return protocol.Execute(ctx, op, req)
}
