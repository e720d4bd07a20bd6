package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prospect-io/prospector/backend/civitai"
	"github.com/prospect-io/prospector/backend/huggingface"
	"github.com/prospect-io/prospector/backend/kb"
	"github.com/prospect-io/prospector/log"
)

func writeKB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.yaml")
	content := "mappings:\n  m.safetensors:\n    source: civitai\n    model_id: 1\n    download_url: https://example.com/1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write kb: %v", err)
	}
	return path
}

func names(t *testing.T, cfg Config) []string {
	t.Helper()
	backends, err := Build(cfg, log.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out := make([]string, len(backends))
	for i, b := range backends {
		out[i] = b.Name()
	}
	return out
}

func TestBuild_AllConfigured(t *testing.T) {
	got := names(t, Config{
		KnowledgeBase:      kb.Config{Path: writeKB(t)},
		Civitai:            civitai.Config{BaseURL: "https://civitai.example.com/api/v1"},
		HuggingFaceEnabled: true,
	})
	want := []string{kb.BackendName, civitai.BackendName, huggingface.BackendName}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBuild_MissingKnowledgeBaseIsSkipped(t *testing.T) {
	got := names(t, Config{
		KnowledgeBase:      kb.Config{Path: filepath.Join(t.TempDir(), "absent.yaml")},
		Civitai:            civitai.Config{BaseURL: "https://civitai.example.com/api/v1"},
		HuggingFaceEnabled: true,
	})
	for _, n := range got {
		if n == kb.BackendName {
			t.Error("unreadable knowledge base was not skipped")
		}
	}
	if len(got) != 2 {
		t.Errorf("backend list %v", got)
	}
}

func TestBuild_CustomOrder(t *testing.T) {
	got := names(t, Config{
		Order:              []string{huggingface.BackendName, civitai.BackendName},
		Civitai:            civitai.Config{BaseURL: "https://civitai.example.com/api/v1"},
		HuggingFaceEnabled: true,
	})
	if got[0] != huggingface.BackendName || got[1] != civitai.BackendName {
		t.Errorf("order not honored: %v", got)
	}
}

func TestBuild_UnknownNameInOrderIsDropped(t *testing.T) {
	got := names(t, Config{
		Order:   []string{"nonexistent", civitai.BackendName},
		Civitai: civitai.Config{BaseURL: "https://civitai.example.com/api/v1"},
	})
	if len(got) != 1 || got[0] != civitai.BackendName {
		t.Errorf("backend list %v", got)
	}
}

func TestBuild_EmptyListIsError(t *testing.T) {
	if _, err := Build(Config{}, log.Nop()); err == nil {
		t.Fatal("expected error when no backends are available")
	}
}
