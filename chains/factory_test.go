package chains

import (
	"context"
	"io"
	"testing"

	"github.com/ClipFinance/approval-lib/chainmanager"
	commonerrors "github.com/ClipFinance/approval-lib/common/errors"
	commontypes "github.com/ClipFinance/approval-lib/common/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainFactory_UnknownTypeFails(t *testing.T) {
	factory := NewChainFactory()

	_, err := factory.CreateChain(context.Background(), &commontypes.ChainConfig{ChainType: commontypes.UNKNOWN}, logrus.New())
	assert.True(t, errors.Is(err, commonerrors.ErrInvalidChainType))

	_, err = factory.CreateChain(context.Background(), nil, logrus.New())
	assert.Equal(t, commonerrors.ErrInvalidConfig, err)
}

func TestChainFactory_RegisteredConstructorIsUsed(t *testing.T) {
	factory := NewChainFactory()
	called := false
	factory.RegisterConstructor(commontypes.EVM, func(_ context.Context, config *commontypes.ChainConfig, _ *logrus.Logger) (commontypes.Chain, error) {
		called = true
		return chainmanager.NewChainBuilder(config).Build(), nil
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry := chainmanager.NewChainRegistry(factory, logger)

	require.NoError(t, registry.Add(context.Background(), &commontypes.ChainConfig{
		Name:      "arbitrum",
		ChainType: commontypes.EVM,
		ChainID:   42161,
	}))
	assert.True(t, called)
	assert.NotNil(t, registry.Get(42161))
}
