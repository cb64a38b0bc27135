package plugin

import (
	"context"
	"errors"
	"testing"
)

type fakePlugin struct {
	info       Info
	configured map[string]any
	initCalls  int
	startCalls int
	stopCalls  int
	startErr   error
}

func (p *fakePlugin) Info() Info { return p.info }

func (p *fakePlugin) Configure(cfg map[string]any) error {
	p.configured = cfg
	return nil
}

func (p *fakePlugin) Init(*ExecutionContext) error { p.initCalls++; return nil }

func (p *fakePlugin) Start(*ExecutionContext) error {
	p.startCalls++
	return p.startErr
}

func (p *fakePlugin) Stop(*ExecutionContext) error { p.stopCalls++; return nil }

type fakeLoader struct {
	plugins map[string]Plugin
}

func (l *fakeLoader) Load(path string) (Plugin, error) {
	p, ok := l.plugins[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func TestManagerLifecycle(t *testing.T) {
	p := &fakePlugin{info: Info{ID: "keyword-agent", Category: TypeAgent}}
	m, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Register("keyword-agent", p, map[string]any{"keywords": "billing"}, IsolationPolicy{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.configured == nil || p.configured["keywords"] != "billing" {
		t.Fatalf("Configure not invoked with config: %+v", p.configured)
	}

	ctx := context.Background()
	if err := m.Start(ctx, "keyword-agent"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.initCalls != 1 || p.startCalls != 1 {
		t.Fatalf("unexpected lifecycle counts: init=%d start=%d", p.initCalls, p.startCalls)
	}

	// second Start is a no-op
	if err := m.Start(ctx, "keyword-agent"); err != nil {
		t.Fatalf("Start again: %v", err)
	}
	if p.startCalls != 1 {
		t.Fatalf("Start must be idempotent, got %d calls", p.startCalls)
	}

	state, err := m.State("keyword-agent")
	if err != nil || state != StateStarted {
		t.Fatalf("unexpected state %s (err %v)", state, err)
	}

	if err := m.Stop(ctx, "keyword-agent"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.stopCalls != 1 {
		t.Fatalf("expected one stop call, got %d", p.stopCalls)
	}
}

func TestManagerLoadsConfiguredPlugins(t *testing.T) {
	loader := &fakeLoader{plugins: map[string]Plugin{
		"/plugins/hints.so": &fakePlugin{info: Info{ID: "hints", Category: TypeKnowledge}},
	}}
	m, err := NewManager(ManagerConfig{
		Plugins: map[string]PluginConfig{
			"hints":    {Enabled: true, Path: "/plugins/hints.so"},
			"disabled": {Enabled: false},
		},
	}, WithLoader(loader))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	infos := m.Infos(TypeKnowledge)
	if len(infos) != 1 || infos[0].ID != "hints" {
		t.Fatalf("unexpected infos: %+v", infos)
	}
	if len(m.Infos(TypeAgent)) != 0 {
		t.Fatalf("expected no agent plugins")
	}
}

func TestCapabilityValidation(t *testing.T) {
	m, err := NewManager(ManagerConfig{
		Defaults: IsolationPolicy{AllowedCapabilities: []Capability{CapabilityNetwork}},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	allowed := &fakePlugin{info: Info{ID: "net", Capabilities: []Capability{CapabilityNetwork}}}
	if err := m.Register("net", allowed, nil, IsolationPolicy{}); err != nil {
		t.Fatalf("expected network capability allowed: %v", err)
	}

	denied := &fakePlugin{info: Info{ID: "exec", Capabilities: []Capability{CapabilityExecution}}}
	if err := m.Register("exec", denied, nil, IsolationPolicy{}); err == nil {
		t.Fatalf("expected execution capability rejected")
	}
}

func TestRegisterRejectsDuplicatesAndMismatch(t *testing.T) {
	m, err := NewManager(ManagerConfig{})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	p := &fakePlugin{info: Info{ID: "dup"}}
	if err := m.Register("dup", p, nil, IsolationPolicy{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register("dup", p, nil, IsolationPolicy{}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := m.Register("other", p, nil, IsolationPolicy{}); err == nil {
		t.Fatalf("expected id mismatch error")
	}
}
