package kb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

const testKB = `mappings:
  realisticVision_v60.safetensors:
    source: civitai
    model_id: 4201
    version_id: 130072
    download_url: https://registry.example.com/api/download/models/130072
    type_hint: checkpoint
  clip_vision_g.safetensors:
    source: huggingface
    repo: stabilityai/control-lora
    download_url: https://huggingface.co/stabilityai/control-lora/resolve/main/clip_vision_g.safetensors
`

func loadTestKB(t *testing.T) *Adapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge_base.yaml")
	if err := os.WriteFile(path, []byte(testKB), 0o644); err != nil {
		t.Fatalf("write kb: %v", err)
	}
	a, err := New(Config{Path: path}, log.Nop())
	if err != nil {
		t.Fatalf("load kb: %v", err)
	}
	return a
}

func TestSearch_MappedEntryIsExactFound(t *testing.T) {
	a := loadTestKB(t)

	res := a.Search(context.Background(), types.ArtifactRef{Filename: "realisticVision_v60.safetensors"})

	if res.Status != types.StatusFound {
		t.Fatalf("expected found, got %s", res.Status)
	}
	if res.Confidence != types.ConfidenceExact {
		t.Errorf("confidence %s", res.Confidence)
	}
	if res.ModelID != 4201 || res.VersionID != 130072 {
		t.Errorf("identifiers: %+v", res)
	}
	if res.TypeHint != "checkpoint" {
		t.Errorf("type hint %q not inferred from mapping", res.TypeHint)
	}
}

func TestSearch_RepoMapping(t *testing.T) {
	a := loadTestKB(t)

	res := a.Search(context.Background(), types.ArtifactRef{Filename: "clip_vision_g.safetensors"})

	if res.Status != types.StatusFound {
		t.Fatalf("expected found, got %s", res.Status)
	}
	if res.Repo != "stabilityai/control-lora" {
		t.Errorf("repo %q", res.Repo)
	}
}

func TestSearch_UnmappedIsNotFound(t *testing.T) {
	a := loadTestKB(t)

	res := a.Search(context.Background(), types.ArtifactRef{Filename: "absent.safetensors"})

	if res.Status != types.StatusNotFound {
		t.Fatalf("expected not_found, got %s", res.Status)
	}
}

func TestSearch_CallerTypeHintWins(t *testing.T) {
	a := loadTestKB(t)

	res := a.Search(context.Background(), types.ArtifactRef{
		Filename: "realisticVision_v60.safetensors",
		TypeHint: "refiner",
	})

	if res.TypeHint != "refiner" {
		t.Errorf("type hint %q, expected caller hint to win", res.TypeHint)
	}
}

func TestNew_MissingFile(t *testing.T) {
	_, err := New(Config{Path: filepath.Join(t.TempDir(), "absent.yaml")}, log.Nop())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNew_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("mappings: ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(Config{Path: path}, log.Nop()); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
