package service

import (
	"sync"

	"access-gate/internal/config"
	"access-gate/internal/model"
)

// ServiceFactory holds service dependencies and builds each service once.
type ServiceFactory struct {
	cfg        *config.Config
	codes      model.CodeStore
	sessions   model.SessionStore
	hasher     CodeHasher
	dispatcher CodeDispatcher
	opts       []Option

	once        sync.Once
	gateService *GateService
}

func NewServiceFactory(
	cfg *config.Config,
	codes model.CodeStore,
	sessions model.SessionStore,
	hasher CodeHasher,
	dispatcher CodeDispatcher,
	opts ...Option,
) *ServiceFactory {
	return &ServiceFactory{
		cfg:        cfg,
		codes:      codes,
		sessions:   sessions,
		hasher:     hasher,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// GateService returns the shared gate service instance.
func (f *ServiceFactory) GateService() *GateService {
	f.once.Do(func() {
		f.gateService = NewGateService(f.cfg, f.codes, f.sessions, f.hasher, f.dispatcher, f.opts...)
	})
	return f.gateService
}
