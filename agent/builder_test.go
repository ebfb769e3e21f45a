package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/canvasflow/browser"
	"github.com/BaSui01/canvasflow/browser/browsertest"
	"github.com/BaSui01/canvasflow/llm/llmtest"
	"github.com/BaSui01/canvasflow/persistence"
	"github.com/BaSui01/canvasflow/types"
)

type mapDefs map[string]*persistence.AgentDefinition

func (m mapDefs) GetByID(_ context.Context, id string) (*persistence.AgentDefinition, error) {
	if def, ok := m[id]; ok {
		return def, nil
	}
	return nil, types.NewError(types.ErrAgentNotFound, "agent definition not found: "+id)
}

func newTestBuilder(defs DefinitionStore) (*Builder, *browsertest.FakeDriver) {
	driver := &browsertest.FakeDriver{}
	provider := &llmtest.ScriptedProvider{Responses: []string{`[]`}}
	b := NewBuilder(driver, browser.DefaultConfig(), provider, "gpt-4o-mini", defs, nil, nil, nil)
	return b, driver
}

func TestBuilder_SystemAgent(t *testing.T) {
	b, _ := newTestBuilder(nil)

	inst, err := b.Build(context.Background(), BuildRequest{AgentType: SystemAgentBrowser})
	require.NoError(t, err)
	assert.NotNil(t, inst)
}

func TestBuilder_UnknownType(t *testing.T) {
	b, _ := newTestBuilder(nil)

	_, err := b.Build(context.Background(), BuildRequest{AgentType: "clairvoyant"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestBuilder_MissingSelector(t *testing.T) {
	b, _ := newTestBuilder(nil)

	_, err := b.Build(context.Background(), BuildRequest{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestBuilder_FreshInstancePerBuild(t *testing.T) {
	b, driver := newTestBuilder(nil)
	ctx := context.Background()

	first, err := b.Build(ctx, BuildRequest{AgentType: SystemAgentBrowser})
	require.NoError(t, err)
	second, err := b.Build(ctx, BuildRequest{AgentType: SystemAgentBrowser})
	require.NoError(t, err)

	// Concurrent executions must never share a session or page.
	assert.NotSame(t, first, second)

	require.NoError(t, first.Initialize(ctx))
	require.NoError(t, second.Initialize(ctx))
	assert.Len(t, driver.Sessions, 2)
}

func TestBuilder_ProviderTypeSelectsRegisteredProvider(t *testing.T) {
	b, _ := newTestBuilder(nil)
	ctx := context.Background()

	alternate := &llmtest.ScriptedProvider{Responses: []string{`[]`}}
	b.RegisterProvider("alternate", alternate)

	inst, err := b.Build(ctx, BuildRequest{AgentType: SystemAgentBrowser, ProviderType: "alternate"})
	require.NoError(t, err)
	require.NoError(t, inst.Initialize(ctx))

	resp := inst.Execute(ctx, "noop")
	require.True(t, resp.Success)
	assert.Len(t, alternate.Requests, 1)
}

func TestBuilder_UnknownProviderType(t *testing.T) {
	b, _ := newTestBuilder(nil)

	_, err := b.Build(context.Background(), BuildRequest{AgentType: SystemAgentBrowser, ProviderType: "clairvoyant"})
	require.Error(t, err)
	assert.Equal(t, types.ErrProviderUnavailable, types.GetErrorCode(err))
}

func TestBuilder_NoProviderConfigured(t *testing.T) {
	driver := &browsertest.FakeDriver{}
	b := NewBuilder(driver, browser.DefaultConfig(), nil, "gpt-4o-mini", nil, nil, nil, nil)

	_, err := b.Build(context.Background(), BuildRequest{AgentType: SystemAgentBrowser})
	require.Error(t, err)
	assert.Equal(t, types.ErrProviderNotSet, types.GetErrorCode(err))
}

func TestBuilder_StoredDefinition(t *testing.T) {
	defs := mapDefs{
		"def-42": {
			ID:            "def-42",
			Name:          "headful-bot",
			DefaultConfig: `{"headless":false,"model":"gpt-4o"}`,
		},
	}
	b, driver := newTestBuilder(defs)
	ctx := context.Background()

	inst, err := b.Build(ctx, BuildRequest{AgentID: "def-42"})
	require.NoError(t, err)
	require.NoError(t, inst.Initialize(ctx))

	require.Len(t, driver.Sessions, 1)
	assert.False(t, driver.Sessions[0].Config.Headless)
}

func TestBuilder_StoredDefinitionNotFound(t *testing.T) {
	b, _ := newTestBuilder(mapDefs{})

	_, err := b.Build(context.Background(), BuildRequest{AgentID: "missing"})
	assert.Equal(t, types.ErrAgentNotFound, types.GetErrorCode(err))
}

func TestBuilder_DefinitionsUnavailable(t *testing.T) {
	b, _ := newTestBuilder(nil)

	_, err := b.Build(context.Background(), BuildRequest{AgentID: "def-42"})
	assert.Equal(t, types.ErrServiceUnavailable, types.GetErrorCode(err))
}

func TestBuilder_RequestConfigOverridesStored(t *testing.T) {
	defs := mapDefs{
		"def-42": {ID: "def-42", DefaultConfig: `{"headless":false}`},
	}
	b, driver := newTestBuilder(defs)
	ctx := context.Background()

	inst, err := b.Build(ctx, BuildRequest{
		AgentID: "def-42",
		Config:  map[string]any{"headless": true},
	})
	require.NoError(t, err)
	require.NoError(t, inst.Initialize(ctx))
	assert.True(t, driver.Sessions[0].Config.Headless)
}

func TestBuilder_RunExecutesAndReleasesSession(t *testing.T) {
	driver := &browsertest.FakeDriver{}
	provider := &llmtest.ScriptedProvider{Responses: []string{`[{"tool":"current_url","params":{}}]`}}
	b := NewBuilder(driver, browser.DefaultConfig(), provider, "gpt-4o-mini", nil, nil, nil, nil)

	resp, err := b.Run(context.Background(), BuildRequest{AgentType: SystemAgentBrowser}, "where am I")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	// Run owns the lifecycle: the session closes with the call.
	require.Len(t, driver.Sessions, 1)
	assert.True(t, driver.Sessions[0].Closed)
}

func TestBuilder_CloseAll(t *testing.T) {
	b, driver := newTestBuilder(nil)
	ctx := context.Background()

	inst, err := b.Build(ctx, BuildRequest{AgentType: SystemAgentBrowser})
	require.NoError(t, err)
	require.NoError(t, inst.Initialize(ctx))

	b.CloseAll(ctx)
	assert.True(t, driver.Sessions[0].Closed)

	// A second pass finds nothing live.
	b.CloseAll(ctx)
	assert.Len(t, driver.Sessions, 1)
}

func TestBuilder_CleanupForgetsInstance(t *testing.T) {
	b, driver := newTestBuilder(nil)
	ctx := context.Background()

	inst, err := b.Build(ctx, BuildRequest{AgentType: SystemAgentBrowser})
	require.NoError(t, err)
	require.NoError(t, inst.Initialize(ctx))
	require.NoError(t, inst.Cleanup(ctx))

	b.mu.Lock()
	remaining := len(b.live)
	b.mu.Unlock()
	assert.Zero(t, remaining)
	assert.True(t, driver.Sessions[0].Closed)
}
