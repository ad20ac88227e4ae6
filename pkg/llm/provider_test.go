package llm

import (
	"context"
	"testing"
)

// stubProvider 同时实现 Embedding 与 Chat，用于注册表测试。
type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (s *stubProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (s *stubProvider) Chat(_ context.Context, _ []Message) (string, error) {
	return "stub answer", nil
}

func (s *stubProvider) Generate(_ context.Context, _ string, _ string) (string, error) {
	return "stub answer", nil
}

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("stub-full", func(config map[string]any) (Provider, error) {
		name := "stub-full"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &stubProvider{name: name}, nil
	})

	provider, err := NewProvider("stub-full", map[string]any{"name": "bookqa-embedder"})
	if err != nil {
		t.Fatalf("NewProvider failed: %v", err)
	}
	if provider.Name() != "bookqa-embedder" {
		t.Errorf("expected name 'bookqa-embedder', got '%s'", provider.Name())
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider("no-such-provider", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewEmbeddingProviderFallback(t *testing.T) {
	RegisterEmbeddingProvider("stub-embed-only", func(_ map[string]any) (EmbeddingProvider, error) {
		return &stubProvider{name: "stub-embed-only"}, nil
	})

	// 专用 Embedding 工厂优先
	provider, err := NewEmbeddingProvider("stub-embed-only", nil)
	if err != nil {
		t.Fatalf("NewEmbeddingProvider failed: %v", err)
	}
	if provider.Name() != "stub-embed-only" {
		t.Errorf("expected name 'stub-embed-only', got '%s'", provider.Name())
	}

	// 没有专用工厂时回退到完整供应商
	if _, err := NewEmbeddingProvider("stub-full", nil); err != nil {
		t.Fatalf("NewEmbeddingProvider fallback failed: %v", err)
	}
}

func TestNewChatProviderFallback(t *testing.T) {
	RegisterChatProvider("stub-chat-only", func(_ map[string]any) (ChatProvider, error) {
		return &stubProvider{name: "stub-chat-only"}, nil
	})

	provider, err := NewChatProvider("stub-chat-only", nil)
	if err != nil {
		t.Fatalf("NewChatProvider failed: %v", err)
	}
	if provider.Name() != "stub-chat-only" {
		t.Errorf("expected name 'stub-chat-only', got '%s'", provider.Name())
	}

	if _, err := NewChatProvider("stub-full", nil); err != nil {
		t.Fatalf("NewChatProvider fallback failed: %v", err)
	}
}

func TestListProviders(t *testing.T) {
	names := ListProviders()
	if len(names) == 0 {
		t.Fatal("expected at least one registered provider")
	}

	found := false
	for _, name := range names {
		if name == "stub-full" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected 'stub-full' in provider list")
	}
}

func TestMessageRole(t *testing.T) {
	tests := []struct {
		role     Role
		expected string
	}{
		{RoleSystem, "system"},
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
	}
	for _, tt := range tests {
		if string(tt.role) != tt.expected {
			t.Errorf("expected role '%s', got '%s'", tt.expected, string(tt.role))
		}
	}
}
