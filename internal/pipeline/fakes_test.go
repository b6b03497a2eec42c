package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jimdaga/food-journal/internal/ai"
	"github.com/jimdaga/food-journal/internal/catalog"
	"github.com/jimdaga/food-journal/internal/store"
	"github.com/jimdaga/food-journal/internal/testdb"
	"github.com/jimdaga/food-journal/internal/tracker"
)

// fakeAI answers from fixed tables keyed by message and food
type fakeAI struct {
	foods       []string
	symptoms    []string
	servings    map[string][]ai.ServingEstimate
	foodsErr    error
	symptomsErr error
	servingsErr map[string]error

	extractCalls int32
}

func (f *fakeAI) ExtractFoods(ctx context.Context, message string) ([]string, error) {
	atomic.AddInt32(&f.extractCalls, 1)
	return f.foods, f.foodsErr
}

func (f *fakeAI) ExtractSymptoms(ctx context.Context, message string) ([]string, error) {
	atomic.AddInt32(&f.extractCalls, 1)
	return f.symptoms, f.symptomsErr
}

func (f *fakeAI) ExtractServings(ctx context.Context, food string, foodGroups []string) ([]ai.ServingEstimate, error) {
	if err := f.servingsErr[food]; err != nil {
		return nil, err
	}
	return f.servings[food], nil
}

func (f *fakeAI) RefineImagePrompt(ctx context.Context, food string) (string, error) {
	return "refined " + food, nil
}

// fakeImages fails for prompts starting with a food listed in failFor.
// onGenerate, when set, runs at the start of every call.
type fakeImages struct {
	calls      int32
	failFor    map[string]bool
	onGenerate func()
	mu      sync.Mutex
	prompts []string
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.onGenerate != nil {
		f.onGenerate()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	for food := range f.failFor {
		if strings.HasPrefix(prompt, food+",") {
			return nil, errors.New("image provider unavailable")
		}
	}
	return []byte("png:" + prompt), nil
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeObjects) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

type fakeFeedback struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeFeedback) ScheduleFeedback(ctx context.Context, userID, logicalDate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID+"/"+logicalDate)
	return nil
}

type harness struct {
	store    *store.Store
	ai       *fakeAI
	images   *fakeImages
	objects  *fakeObjects
	feedback *fakeFeedback
	registry *catalog.Registry
	orch     *Orchestrator
}

func newHarness(t *testing.T, extractor *fakeAI) *harness {
	t.Helper()
	s := store.New(testdb.Open(t))
	registry, err := catalog.Init(context.Background(), s, "")
	if err != nil {
		t.Fatalf("catalog.Init: %v", err)
	}

	h := &harness{
		store:    s,
		ai:       extractor,
		images:   &fakeImages{failFor: map[string]bool{}},
		objects:  &fakeObjects{},
		feedback: &fakeFeedback{},
		registry: registry,
	}
	h.orch = h.build(s)
	return h
}

// build wires an orchestrator over repo, which may wrap the harness store
func (h *harness) build(repo Repository) *Orchestrator {
	return New(Deps{
		Repo:     repo,
		Jobs:     tracker.New(h.store, nil, 0),
		AI:       h.ai,
		Images:   h.images,
		Objects:  h.objects,
		Catalog:  h.registry,
		Feedback: h.feedback,
	}, Options{})
}

func (h *harness) group(t *testing.T, name string) uint {
	t.Helper()
	g, ok := h.registry.Lookup(name)
	if !ok {
		t.Fatalf("food group %s missing from catalog", name)
	}
	return g.ID
}
