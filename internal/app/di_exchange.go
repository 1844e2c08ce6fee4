package app

import (
	"fmt"
	"time"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	cryptoService "github.com/allisson/credx/internal/crypto/service"
	envelopeService "github.com/allisson/credx/internal/envelope/service"
	exchangeHTTP "github.com/allisson/credx/internal/exchange/http"
	exchangeRepository "github.com/allisson/credx/internal/exchange/repository"
	exchangeService "github.com/allisson/credx/internal/exchange/service"
	exchangeUseCase "github.com/allisson/credx/internal/exchange/usecase"
	identityService "github.com/allisson/credx/internal/identity/service"
	"github.com/allisson/credx/internal/metrics"
)

// Resolver returns the public key resolver: local keys first, then did:key, behind an LRU cache.
func (c *Container) Resolver() (identityService.Resolver, error) {
	c.resolverInit.Do(func() {
		c.resolver, c.initErrors["resolver"] = c.initResolver()
	})
	if err := c.initErrors["resolver"]; err != nil {
		return nil, err
	}
	return c.resolver, nil
}

// Signer returns the Ed25519 signer backed by the key store.
func (c *Container) Signer() (*identityService.KeyStoreSigner, error) {
	c.signerInit.Do(func() {
		store, err := c.KeyStore()
		if err != nil {
			c.initErrors["signer"] = err
			return
		}
		c.signer = identityService.NewKeyStoreSigner(store)
	})
	if err := c.initErrors["signer"]; err != nil {
		return nil, err
	}
	return c.signer, nil
}

// Packer returns the envelope packer. Every sender key use is counted by the rotation manager.
func (c *Container) Packer() (*envelopeService.PackerService, error) {
	c.packerInit.Do(func() {
		c.packer, c.initErrors["packer"] = c.initPacker()
	})
	if err := c.initErrors["packer"]; err != nil {
		return nil, err
	}
	return c.packer, nil
}

// Registry returns the protocol registry with p2p-encrypted, browser-wallet and oidc-issuance registered.
func (c *Container) Registry() (*exchangeService.Registry, error) {
	c.registryInit.Do(func() {
		c.registry, c.initErrors["registry"] = c.initRegistry()
	})
	if err := c.initErrors["registry"]; err != nil {
		return nil, err
	}
	return c.registry, nil
}

// FlowLog returns the SQL flow log when enabled, the in-memory one otherwise.
func (c *Container) FlowLog() (exchangeService.FlowLog, error) {
	c.flowLogInit.Do(func() {
		c.flowLog, c.initErrors["flowLog"] = c.initFlowLog()
	})
	if err := c.initErrors["flowLog"]; err != nil {
		return nil, err
	}
	return c.flowLog, nil
}

// Correlator returns the flow correlator.
func (c *Container) Correlator() (*exchangeService.Correlator, error) {
	c.correlatorInit.Do(func() {
		c.correlator, c.initErrors["correlator"] = c.initCorrelator()
	})
	if err := c.initErrors["correlator"]; err != nil {
		return nil, err
	}
	return c.correlator, nil
}

// ExchangeUseCase returns the exchange service, instrumented with business metrics.
func (c *Container) ExchangeUseCase() (exchangeUseCase.ExchangeUseCase, error) {
	c.exchangeUseCaseInit.Do(func() {
		c.exchangeUseCase, c.initErrors["exchangeUseCase"] = c.initExchangeUseCase()
	})
	if err := c.initErrors["exchangeUseCase"]; err != nil {
		return nil, err
	}
	return c.exchangeUseCase, nil
}

// ExchangeHandler returns the read-only exchange HTTP handler.
func (c *Container) ExchangeHandler() (*exchangeHTTP.ExchangeHandler, error) {
	useCase, err := c.ExchangeUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange use case for handler: %w", err)
	}
	return exchangeHTTP.NewExchangeHandler(useCase, c.Logger()), nil
}

func (c *Container) initResolver() (identityService.Resolver, error) {
	store, err := c.KeyStore()
	if err != nil {
		return nil, err
	}

	chain := identityService.NewChainResolver(
		identityService.NewLocalResolver(store),
		identityService.NewDIDKeyResolver(),
	)
	size := c.config.ResolverCacheSize
	if size <= 0 {
		return chain, nil
	}
	return identityService.NewCachingResolver(chain, size, c.config.ResolverCacheTTL), nil
}

func (c *Container) initPacker() (*envelopeService.PackerService, error) {
	store, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	resolver, err := c.Resolver()
	if err != nil {
		return nil, err
	}
	signer, err := c.Signer()
	if err != nil {
		return nil, err
	}
	manager, err := c.RotationManager()
	if err != nil {
		return nil, err
	}

	packer := envelopeService.NewPacker(
		cryptoService.NewEngine(cryptoService.NewAEADManager()),
		cryptoService.NewKeyGenerator(),
		resolver,
		store,
		signer,
		c.Logger(),
	)
	return packer.WithUsageRecorder(manager), nil
}

func (c *Container) initRegistry() (*exchangeService.Registry, error) {
	store, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	packer, err := c.Packer()
	if err != nil {
		return nil, err
	}
	resolver, err := c.Resolver()
	if err != nil {
		return nil, err
	}
	signer, err := c.Signer()
	if err != nil {
		return nil, err
	}

	oidc, err := exchangeService.NewOIDCProtocol(
		exchangeService.OIDCConfig{IssuerURL: c.config.OIDCIssuerURL},
		signer,
		resolver,
		store,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oidc protocol: %w", err)
	}
	p2p := exchangeService.NewP2PProtocol(packer, cryptoDomain.AESGCM)
	wallet := exchangeService.NewWalletProtocol(packer)

	registry := exchangeService.NewRegistry()
	if err := registry.Register(p2p.Descriptor(), p2p); err != nil {
		return nil, err
	}
	if err := registry.Register(wallet.Descriptor(), wallet); err != nil {
		return nil, err
	}
	if err := registry.Register(oidc.Descriptor(), oidc); err != nil {
		return nil, err
	}
	return registry, nil
}

func (c *Container) initFlowLog() (exchangeService.FlowLog, error) {
	if !c.config.FlowLogEnabled {
		return exchangeRepository.NewInMemoryFlowRecordRepository(), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for flow log: %w", err)
	}
	switch c.config.DBDriver {
	case "postgres":
		return exchangeRepository.NewPostgreSQLFlowRecordRepository(db), nil
	case "mysql":
		return exchangeRepository.NewMySQLFlowRecordRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initCorrelator() (*exchangeService.Correlator, error) {
	flowLog, err := c.FlowLog()
	if err != nil {
		return nil, err
	}
	correlator := exchangeService.NewCorrelator(flowLog, c.Logger())

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider != nil {
		if err := metrics.RegisterFlowGauge(provider.MeterProvider(), provider.Namespace(), correlator); err != nil {
			return nil, fmt.Errorf("failed to register flow gauge: %w", err)
		}
	}
	return correlator, nil
}

func (c *Container) initExchangeUseCase() (exchangeUseCase.ExchangeUseCase, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}
	correlator, err := c.Correlator()
	if err != nil {
		return nil, err
	}
	flowLog, err := c.FlowLog()
	if err != nil {
		return nil, err
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, err
	}

	useCase := exchangeUseCase.NewExchangeUseCase(
		registry,
		correlator,
		flowLog,
		exchangeUseCase.Config{
			DispatchTimeout: c.config.DispatchTimeout,
			FlowTTL:         c.config.FlowTTL,
		},
		c.Logger(),
	)
	return exchangeUseCase.NewExchangeUseCaseWithMetrics(useCase, businessMetrics), nil
}

// ExpireInterval is the period of the stale flow sweep run by the server.
func (c *Container) ExpireInterval() time.Duration {
	if ttl := c.config.FlowTTL; ttl > 0 && ttl < time.Hour {
		return ttl / 2
	}
	return time.Minute
}
