package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

func serveModels(t *testing.T, entries []modelEntry) *Adapter {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	}))
	t.Cleanup(ts.Close)

	a, err := New(Config{BaseURL: ts.URL}, log.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func entry(id string, files ...string) modelEntry {
	e := modelEntry{ID: id}
	for _, f := range files {
		e.Siblings = append(e.Siblings, struct {
			Rfilename string `json:"rfilename"`
		}{Rfilename: f})
	}
	return e
}

func TestSearch_ExactSiblingMatch(t *testing.T) {
	a := serveModels(t, []modelEntry{
		entry("runwayml/stable-diffusion-v1-5", "v1-5-pruned-emaonly.safetensors"),
	})

	res := a.Search(context.Background(), types.ArtifactRef{Filename: "v1-5-pruned-emaonly.safetensors"})

	if res.Status != types.StatusFound {
		t.Fatalf("expected found, got %s (%s)", res.Status, res.ErrorDetail)
	}
	if res.Confidence != types.ConfidenceExact {
		t.Errorf("confidence %s", res.Confidence)
	}
	if res.Repo != "runwayml/stable-diffusion-v1-5" {
		t.Errorf("repo %q", res.Repo)
	}
	want := a.config.BaseURL + "/runwayml/stable-diffusion-v1-5/resolve/main/v1-5-pruned-emaonly.safetensors"
	if res.DownloadURL != want {
		t.Errorf("download URL %q, want %q", res.DownloadURL, want)
	}
}

func TestSearch_NestedSiblingPathMatchesOnBaseName(t *testing.T) {
	a := serveModels(t, []modelEntry{
		entry("stabilityai/sd-vae", "vae/diffusion_pytorch_model.bin"),
	})

	res := a.Search(context.Background(), types.ArtifactRef{Filename: "diffusion_pytorch_model.bin"})

	if res.Status != types.StatusFound {
		t.Fatalf("expected found, got %s", res.Status)
	}
	want := a.config.BaseURL + "/stabilityai/sd-vae/resolve/main/vae/diffusion_pytorch_model.bin"
	if res.DownloadURL != want {
		t.Errorf("download URL %q", res.DownloadURL)
	}
}

func TestSearch_PartialMatchesAreUncertain(t *testing.T) {
	a := serveModels(t, []modelEntry{
		entry("someone/realistic-vision", "realisticVision_v51.safetensors", "realisticVision_v60_inpainting.safetensors"),
	})

	res := a.Search(context.Background(), types.ArtifactRef{Filename: "realisticVision_v60.safetensors"})

	if res.Status != types.StatusUncertain {
		t.Fatalf("expected uncertain, got %s", res.Status)
	}
	if len(res.Candidates()) == 0 {
		t.Fatal("no candidates on uncertain resolution")
	}
}

func TestSearch_NoMatchesIsNotFound(t *testing.T) {
	a := serveModels(t, []modelEntry{entry("org/unrelated", "other.bin")})

	res := a.Search(context.Background(), types.ArtifactRef{Filename: "rand_unknown_xyz.pt"})

	if res.Status != types.StatusNotFound {
		t.Fatalf("expected not_found, got %s", res.Status)
	}
}

func TestSearch_ServerErrorIsErrorResolution(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)

	a, err := New(Config{BaseURL: ts.URL}, log.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	res := a.Search(context.Background(), types.ArtifactRef{Filename: "m.safetensors"})

	if res.Status != types.StatusError {
		t.Fatalf("expected error, got %s", res.Status)
	}
	if res.ErrorDetail == "" {
		t.Error("missing error detail")
	}
}
