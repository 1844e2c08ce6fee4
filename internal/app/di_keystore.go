package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cryptoDomain "github.com/allisson/credx/internal/crypto/domain"
	cryptoService "github.com/allisson/credx/internal/crypto/service"
	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
	keystoreService "github.com/allisson/credx/internal/keystore/service"
	keystoreUseCase "github.com/allisson/credx/internal/keystore/usecase"
)

// KMSService returns the service opening gocloud.dev KMS keepers.
func (c *Container) KMSService() keystoreService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = keystoreService.NewKMSService()
	})
	return c.kmsService
}

// KeyStore returns the encrypted file key store.
func (c *Container) KeyStore() (*keystoreUseCase.FileKeyStore, error) {
	c.keyStoreInit.Do(func() {
		c.keyStore, c.initErrors["keyStore"] = c.initKeyStore(context.Background())
	})
	if err := c.initErrors["keyStore"]; err != nil {
		return nil, err
	}
	return c.keyStore, nil
}

// RotationManager returns the rotation manager, instrumented with business metrics.
func (c *Container) RotationManager() (keystoreUseCase.RotationManager, error) {
	c.rotationManagerInit.Do(func() {
		c.rotationManager, c.initErrors["rotationManager"] = c.initRotationManager()
	})
	if err := c.initErrors["rotationManager"]; err != nil {
		return nil, err
	}
	return c.rotationManager, nil
}

// RotationScheduler returns the periodic rotation worker.
func (c *Container) RotationScheduler() (*keystoreUseCase.RotationScheduler, error) {
	c.rotationSchedulerInit.Do(func() {
		c.rotationScheduler, c.initErrors["rotationScheduler"] = c.initRotationScheduler()
	})
	if err := c.initErrors["rotationScheduler"]; err != nil {
		return nil, err
	}
	return c.rotationScheduler, nil
}

// RotationPolicy builds the policy from the configured thresholds. Without any
// threshold keys are never rotated automatically.
func (c *Container) RotationPolicy() keystoreDomain.RotationPolicy {
	var policies []keystoreDomain.RotationPolicy
	if c.config.RotationMaxAge > 0 {
		policies = append(policies, keystoreDomain.AgePolicy{MaxAge: c.config.RotationMaxAge})
	}
	if c.config.RotationMaxUses > 0 {
		policies = append(policies, keystoreDomain.UsagePolicy{MaxUses: c.config.RotationMaxUses})
	}

	switch len(policies) {
	case 0:
		return keystoreDomain.NeverPolicy{}
	case 1:
		return policies[0]
	default:
		return keystoreDomain.CompositePolicy{Policies: policies}
	}
}

// masterKeySource picks the KMS keeper when a key URI is configured, the passphrase otherwise.
// The returned close function releases the keeper once the master key is derived.
func (c *Container) masterKeySource(ctx context.Context) (keystoreService.MasterKeySource, func() error, error) {
	path := c.config.KeyStorePath

	if c.config.KeyStoreKMSKeyURI != "" {
		keeper, err := c.KMSService().OpenKeeper(ctx, c.config.KeyStoreKMSKeyURI)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open kms keeper: %w", err)
		}
		return keystoreService.NewKMSSource(keeper, path+".mk"), keeper.Close, nil
	}

	if c.config.KeyStorePassphrase == "" {
		return nil, nil, fmt.Errorf("%w: KEYSTORE_PASSPHRASE or KEYSTORE_KMS_KEY_URI is required",
			keystoreDomain.ErrMasterKeyUnavailable)
	}
	params := keystoreService.Argon2Params{
		Time:     c.config.KeyStoreArgon2Time,
		MemoryKB: c.config.KeyStoreArgon2MemoryKB,
		Threads:  c.config.KeyStoreArgon2Threads,
	}
	source := keystoreService.NewPassphraseSource(c.config.KeyStorePassphrase, path+".salt", params)
	return source, func() error { return nil }, nil
}

func (c *Container) initKeyStore(ctx context.Context) (*keystoreUseCase.FileKeyStore, error) {
	source, closeSource, err := c.masterKeySource(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeSource(); err != nil {
			c.Logger().Warn("failed to close master key source", slog.Any("error", err))
		}
	}()

	codec := keystoreService.NewKeySetCodec(cryptoService.NewAEADManager(), cryptoDomain.AESGCM)
	store, err := keystoreUseCase.NewFileKeyStore(ctx, c.config.KeyStorePath, source, codec, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	return store, nil
}

func (c *Container) initRotationManager() (keystoreUseCase.RotationManager, error) {
	store, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, err
	}

	manager := keystoreUseCase.NewRotationManager(store, cryptoService.NewKeyGenerator(), c.RotationPolicy(), c.Logger())
	return keystoreUseCase.NewRotationManagerWithMetrics(manager, businessMetrics), nil
}

func (c *Container) initRotationScheduler() (*keystoreUseCase.RotationScheduler, error) {
	store, err := c.KeyStore()
	if err != nil {
		return nil, err
	}
	manager, err := c.RotationManager()
	if err != nil {
		return nil, err
	}

	interval := c.config.RotationCheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return keystoreUseCase.NewRotationScheduler(store, manager, interval, c.Logger()), nil
}
