package civitai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

func ref(name string) types.ArtifactRef {
	return types.ArtifactRef{Filename: name, TypeHint: "checkpoint"}
}

// registryStub serves a minimal slice of the registry API.
type registryStub struct {
	models   map[int64]modelResponse
	byHash   map[string]versionResponse
	searches []searchResponse // popped in request order; empty replays last
	requests []string
}

func (s *registryStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests = append(s.requests, r.URL.String())
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/models":
			var resp searchResponse
			if len(s.searches) > 0 {
				resp = s.searches[0]
				if len(s.searches) > 1 {
					s.searches = s.searches[1:]
				}
			}
			_ = json.NewEncoder(w).Encode(resp)
		case strings.HasPrefix(r.URL.Path, "/models/"):
			id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/models/"), 10, 64)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			m, ok := s.models[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(m)
		case strings.HasPrefix(r.URL.Path, "/model-versions/by-hash/"):
			v, ok := s.byHash[r.URL.Path[len("/model-versions/by-hash/"):]]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(v)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestAdapter(t *testing.T, stub *registryStub, mutate func(*Config)) *Adapter {
	t.Helper()
	ts := httptest.NewServer(stub.handler())
	t.Cleanup(ts.Close)

	cfg := Config{BaseURL: ts.URL}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg, log.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func modelWithFile(id, versionID int64, filename string) modelResponse {
	return modelResponse{
		ID: id,
		ModelVersions: []versionResponse{{
			ID:      versionID,
			ModelID: id,
			Files: []fileResponse{{
				Name:        filename,
				DownloadURL: "https://registry.example.com/api/download/models/130072",
			}},
		}},
	}
}

func TestSearch_ExactMatchViaQuery(t *testing.T) {
	stub := &registryStub{
		searches: []searchResponse{{Items: []modelResponse{
			modelWithFile(4201, 130072, "realisticVision_v60.safetensors"),
		}}},
	}
	a := newTestAdapter(t, stub, nil)

	res := a.Search(context.Background(), ref("realisticVision_v60.safetensors"))

	if res.Status != types.StatusFound {
		t.Fatalf("expected found, got %s (%s)", res.Status, res.ErrorDetail)
	}
	if res.Confidence != types.ConfidenceExact {
		t.Errorf("expected exact confidence, got %s", res.Confidence)
	}
	if res.ModelID != 4201 || res.VersionID != 130072 {
		t.Errorf("identifiers: %+v", res)
	}
	if res.DownloadURL == "" {
		t.Error("missing download URL")
	}
}

func TestSearch_DirectLookupIdentityMismatch(t *testing.T) {
	// The registry returns record 222 for a request of id 111 instead of a
	// 404. The substitute carries a file whose name matches exactly; it
	// must still never surface as found.
	stub := &registryStub{
		models: map[int64]modelResponse{
			111: modelWithFile(222, 999, "wanted.safetensors"),
		},
	}
	a := newTestAdapter(t, stub, func(cfg *Config) {
		cfg.KnownModelIDs = map[string]int64{"wanted.safetensors": 111}
	})

	res := a.Search(context.Background(), ref("wanted.safetensors"))

	if res.Status == types.StatusFound {
		t.Fatalf("mismatched direct lookup surfaced as found: %+v", res)
	}
	if res.ModelID == 222 {
		t.Error("substitute record identifiers leaked into the resolution")
	}
}

func TestSearch_DirectLookupSuccess(t *testing.T) {
	stub := &registryStub{
		models: map[int64]modelResponse{
			111: modelWithFile(111, 555, "wanted.safetensors"),
		},
	}
	a := newTestAdapter(t, stub, func(cfg *Config) {
		cfg.KnownModelIDs = map[string]int64{"wanted.safetensors": 111}
	})

	res := a.Search(context.Background(), ref("wanted.safetensors"))

	if res.Status != types.StatusFound {
		t.Fatalf("expected found, got %s", res.Status)
	}
	if res.Metadata[types.MetaStrategy] != "direct_id" {
		t.Errorf("expected direct_id strategy, got %v", res.Metadata[types.MetaStrategy])
	}
	if res.ModelID != 111 {
		t.Errorf("model id %d", res.ModelID)
	}
}

func TestSearch_HashLookup(t *testing.T) {
	const digest = "ab82d1e532f6ab0bd6d06f77f01d9dbc94b4b3082f958ba2432e8ef7b6f8e9c1"
	stub := &registryStub{
		byHash: map[string]versionResponse{
			digest: {
				ID:      555,
				ModelID: 111,
				Files: []fileResponse{{
					Name:        "hashed.safetensors",
					DownloadURL: "https://registry.example.com/api/download/models/555",
				}},
			},
		},
	}
	a := newTestAdapter(t, stub, func(cfg *Config) {
		cfg.KnownHashes = map[string]string{"hashed.safetensors": digest}
	})

	res := a.Search(context.Background(), ref("hashed.safetensors"))

	if res.Status != types.StatusFound {
		t.Fatalf("expected found, got %s", res.Status)
	}
	if res.Metadata[types.MetaStrategy] != "hash" {
		t.Errorf("expected hash strategy, got %v", res.Metadata[types.MetaStrategy])
	}
}

func TestSearch_FuzzyOnlyIsUncertain(t *testing.T) {
	// Candidate shares the stem but is not an exact name match.
	stub := &registryStub{
		searches: []searchResponse{{Items: []modelResponse{
			modelWithFile(4201, 130072, "realisticVision_v60_pruned.safetensors"),
		}}},
	}
	a := newTestAdapter(t, stub, nil)

	res := a.Search(context.Background(), ref("realisticVision_v60.safetensors"))

	if res.Status != types.StatusUncertain {
		t.Fatalf("expected uncertain, got %s", res.Status)
	}
	cands := res.Candidates()
	if len(cands) == 0 {
		t.Fatal("uncertain resolution carries no candidates")
	}
	if cands[0].Name != "realisticVision_v60_pruned.safetensors" {
		t.Errorf("top candidate %q", cands[0].Name)
	}
}

func TestSearch_EmptyRegistryIsNotFound(t *testing.T) {
	a := newTestAdapter(t, &registryStub{}, nil)

	res := a.Search(context.Background(), ref("rand_unknown_xyz.pt"))

	if res.Status != types.StatusNotFound {
		t.Fatalf("expected not_found, got %s", res.Status)
	}
}

func TestSearch_AllStrategiesFailingIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	a, err := New(Config{BaseURL: ts.URL}, log.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	res := a.Search(context.Background(), ref("anything.safetensors"))

	if res.Status != types.StatusError {
		t.Fatalf("expected error, got %s", res.Status)
	}
	if res.ErrorDetail == "" {
		t.Error("error resolution carries no detail")
	}
}

func TestSearch_SendsBearerToken(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(searchResponse{})
	}))
	t.Cleanup(ts.Close)

	a, err := New(Config{BaseURL: ts.URL, Token: "secret-token"}, log.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	a.Search(context.Background(), ref("m.safetensors"))

	if auth != "Bearer secret-token" {
		t.Errorf("Authorization header %q", auth)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, log.Nop()); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
