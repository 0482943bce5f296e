package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equaliser/intake-agent/internal/db"
	"github.com/equaliser/intake-agent/internal/extract"
	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/intake"
	"github.com/equaliser/intake-agent/internal/llm"
	"github.com/equaliser/intake-agent/internal/llm/llmtest"
	"github.com/equaliser/intake-agent/internal/memory"
)

func conversation() []memory.Message {
	return []memory.Message{
		{Role: memory.RoleUser, Text: "My ex-partner and I separated in January 2024."},
		{Role: memory.RoleAssistant, Text: "I'm sorry to hear that. Are there children involved?"},
		{Role: memory.RoleUser, Text: "Two, aged 4 and 7. I earn $4,000 a month."},
	}
}

func record() facts.Record {
	family := "family"
	return facts.Record{MatterType: &family, KeyDates: []string{"January 2024: separation"}}
}

// sectionHeading pulls the heading out of a section drafting request.
func sectionHeading(req llm.CompletionRequest) string {
	_, rest, _ := strings.Cut(req.Messages[0].Content, `draft the "`)
	heading, _, _ := strings.Cut(rest, `"`)
	return heading
}

func priorReport(req llm.CompletionRequest) string {
	_, prior, _ := strings.Cut(req.Messages[0].Content, "Report written so far:\n")
	return prior
}

func newTestPipeline(p llm.Provider) *Pipeline {
	return NewPipeline(&extract.Caller{Provider: p, Model: "test-model", Attempts: 2}, Options{})
}

func draftEcho(req llm.CompletionRequest) (string, error) {
	return fmt.Sprintf("## %s\n\nDraft of %s.", sectionHeading(req), sectionHeading(req)), nil
}

func TestSkeletonValidate(t *testing.T) {
	tests := []struct {
		name    string
		skel    Skeleton
		wantErr error
		ok      bool
	}{
		{"empty", Skeleton{}, ErrEmptySkeleton, false},
		{"blank heading", NewSkeleton("Matter Summary", "  "), nil, false},
		{"duplicate", NewSkeleton("Risk Assessment", "risk assessment"), nil, false},
		{"ok", Skeleton{Sections: []Section{{Heading: " Parties ", SubHeadings: []string{"Client", " ", "Other party"}}}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.skel.Validate()
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "Parties", tt.skel.Sections[0].Heading)
				assert.Equal(t, []string{"Client", "Other party"}, tt.skel.Sections[0].SubHeadings)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDesignSkeletonKeepsOracleOrder(t *testing.T) {
	p := llmtest.New().Reply("skeleton", `{"skeleton":[
		{"heading":"Risk Assessment","sub_headings":["Safety"]},
		{"heading":"Matter Summary","sub_headings":[]},
		{"heading":"Parties Involved","sub_headings":["Client","Former partner"]}
	]}`)

	skel, err := newTestPipeline(p).DesignSkeleton(context.Background(), conversation(), record())

	require.NoError(t, err)
	assert.Equal(t, []string{"Risk Assessment", "Matter Summary", "Parties Involved"}, skel.Headings())
	prompt := llmtest.LastUserContent(p.CallsFor("skeleton")[0])
	assert.Contains(t, prompt, "user: Two, aged 4 and 7")
	assert.Contains(t, prompt, `"matter_type": "family"`)
}

func TestDesignSkeletonRejectsEmpty(t *testing.T) {
	p := llmtest.New().Reply("skeleton", `{"skeleton":[]}`)

	_, err := newTestPipeline(p).DesignSkeleton(context.Background(), conversation(), record())

	assert.True(t, extract.IsSchemaValidation(err))
	assert.ErrorIs(t, err, ErrEmptySkeleton)
}

func TestGenerateReportPreservesOrder(t *testing.T) {
	p := llmtest.New().On("section", draftEcho)
	skel := NewSkeleton("Matter Summary", "Parties", "Financial Overview")

	drafts, err := newTestPipeline(p).GenerateReport(context.Background(), conversation(), record(), &skel)

	require.NoError(t, err)
	require.Len(t, drafts, 3)
	for i, h := range skel.Headings() {
		assert.True(t, strings.HasPrefix(drafts[i], "## "+h), "draft %d = %q", i, drafts[i])
	}
}

func TestGenerateReportFeedsPriorDrafts(t *testing.T) {
	p := llmtest.New().On("section", draftEcho)
	skel := NewSkeleton("Matter Summary", "Parties", "Financial Overview")

	drafts, err := newTestPipeline(p).GenerateReport(context.Background(), conversation(), record(), &skel)
	require.NoError(t, err)

	calls := p.CallsFor("section")
	require.Len(t, calls, 3)
	assert.Equal(t, noPriorSections, priorReport(calls[0]))
	for i := 1; i < len(calls); i++ {
		assert.Equal(t, strings.Join(drafts[:i], "\n\n"), priorReport(calls[i]), "section %d", i)
	}
	assert.Contains(t, llmtest.LastUserContent(calls[2]), "assistant: I'm sorry to hear that")
}

func TestGenerateReportIsOrderSensitive(t *testing.T) {
	// Each draft cross-references whatever came before it.
	crossRef := func(req llm.CompletionRequest) (string, error) {
		h := sectionHeading(req)
		prior := priorReport(req)
		if prior == noPriorSections {
			return "## " + h + "\n\nFirst section.", nil
		}
		return fmt.Sprintf("## %s\n\nSee %d earlier section(s).", h, strings.Count(prior, "## ")), nil
	}
	run := func(headings ...string) map[string]string {
		p := llmtest.New().On("section", crossRef)
		skel := NewSkeleton(headings...)
		drafts, err := newTestPipeline(p).GenerateReport(context.Background(), nil, facts.Record{}, &skel)
		require.NoError(t, err)
		out := map[string]string{}
		for i, h := range headings {
			out[h] = drafts[i]
		}
		return out
	}

	ab := run("Parties", "Chronology")
	ba := run("Chronology", "Parties")
	assert.NotEqual(t, ab["Parties"], ba["Parties"])
}

func TestGenerateReportRetriesBlankDraftThenAborts(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		p := llmtest.New().Reply("section", "  ", "## Parties\n\nText.")
		skel := NewSkeleton("Parties")
		drafts, err := newTestPipeline(p).GenerateReport(context.Background(), nil, facts.Record{}, &skel)
		require.NoError(t, err)
		assert.Equal(t, []string{"## Parties\n\nText."}, drafts)
	})

	t.Run("aborts", func(t *testing.T) {
		var n int
		p := llmtest.New().On("section", func(req llm.CompletionRequest) (string, error) {
			n++
			if sectionHeading(req) == "Parties" {
				return "", nil
			}
			return draftEcho(req)
		})
		skel := NewSkeleton("Matter Summary", "Parties", "Risk Assessment")

		drafts, err := newTestPipeline(p).GenerateReport(context.Background(), nil, facts.Record{}, &skel)

		assert.Nil(t, drafts, "no partial report")
		var se *SectionError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 1, se.Index)
		assert.Equal(t, "Parties", se.Heading)
		assert.ErrorIs(t, err, ErrEmptyDraft)
		assert.Equal(t, 3, n, "one draft for the first section and two tries for the second")
	})
}

func TestGenerateReportAbortsOnOracleFailure(t *testing.T) {
	p := llmtest.New().Fail("section", fmt.Errorf("%w: 503", llm.ErrOracleUnavailable))
	skel := NewSkeleton("Matter Summary", "Parties")

	_, err := newTestPipeline(p).GenerateReport(context.Background(), nil, facts.Record{}, &skel)

	var se *SectionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Index)
	assert.ErrorIs(t, err, llm.ErrOracleUnavailable)
	assert.Len(t, p.CallsFor("section"), 1)
}

func TestGenerateReportCancelsBetweenSections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var drafted []string
	p := llmtest.New().On("section", func(req llm.CompletionRequest) (string, error) {
		h := sectionHeading(req)
		drafted = append(drafted, h)
		if h == "Parties" {
			// Cancelled mid-section: this draft still completes.
			cancel()
		}
		return draftEcho(req)
	})
	skel := NewSkeleton("Matter Summary", "Parties", "Risk Assessment")

	_, err := newTestPipeline(p).GenerateReport(ctx, nil, facts.Record{}, &skel)

	var se *SectionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Index)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"Matter Summary", "Parties"}, drafted)
}

type ctxProbe struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	errs   []error
}

func (c *ctxProbe) Name() string { return "probe" }

func (c *ctxProbe) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	c.errs = append(c.errs, ctx.Err())
	return &llm.CompletionResponse{Content: "## Section\n\ntext"}, nil
}

func TestSectionDraftIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	probe := &ctxProbe{cancel: cancel}
	skel := NewSkeleton("Parties")

	drafts, err := newTestPipeline(probe).GenerateReport(ctx, nil, facts.Record{}, &skel)

	require.NoError(t, err)
	assert.Len(t, drafts, 1)
	assert.Equal(t, []error{nil}, probe.errs, "the draft call must not see the caller's cancellation")
}

func TestGenerateReportRejectsEmptySkeleton(t *testing.T) {
	_, err := newTestPipeline(llmtest.New()).GenerateReport(context.Background(), nil, facts.Record{}, &Skeleton{})
	assert.ErrorIs(t, err, ErrEmptySkeleton)
}

func TestAssemble(t *testing.T) {
	got := Assemble("Legal Intake Report", []string{"## A\n\nOne.\n", "## B\n\nTwo."})
	assert.Equal(t, "# Legal Intake Report\n\n## A\n\nOne.\n\n## B\n\nTwo.\n", got)
}

func TestRenderHTML(t *testing.T) {
	page, err := RenderHTML("Intake <Report>", "# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<script>alert(1)</script>\n", time.Time{})
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "<title>Intake &lt;Report&gt;</title>")
	assert.Contains(t, html, "<table>")
	assert.NotContains(t, html, "<script>alert(1)</script>")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Latest(ctx, "s1")
	assert.ErrorIs(t, err, ErrNoReport)

	doc := &Document{Title: DefaultTitle, Skeleton: NewSkeleton("Parties"), Sections: []string{"## Parties"}, Markdown: "# Legal Intake Report\n\n## Parties\n"}
	first, err := store.Save(ctx, "s1", "test-model", doc)
	require.NoError(t, err)
	doc.Markdown = "# Legal Intake Report\n\n## Parties (revised)\n"
	second, err := store.Save(ctx, "s1", "test-model", doc)
	require.NoError(t, err)

	latest, err := store.Latest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, []string{"Parties"}, latest.Skeleton.Headings())
	assert.Equal(t, "test-model", latest.Model)

	all, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[1].ID)
}

type fakeSessions map[string]*intake.Snapshot

func (f fakeSessions) Session(_ context.Context, id string) (*intake.Snapshot, error) {
	snap, ok := f[id]
	if !ok {
		return nil, intake.ErrInvalidSession
	}
	return snap, nil
}

func TestRoutes(t *testing.T) {
	p := llmtest.New().
		Reply("skeleton", `{"skeleton":[{"heading":"Matter Summary","sub_headings":[]},{"heading":"Parties","sub_headings":["Client"]}]}`).
		On("section", draftEcho)
	sessions := fakeSessions{
		"done": {ID: "done", State: intake.StateComplete, Memory: memory.State{Full: conversation()}, Facts: record()},
		"open": {ID: "open", State: intake.StateActive},
	}
	h := &Handler{Pipeline: newTestPipeline(p), Store: newTestStore(t), Sessions: sessions, Model: "test-model"}
	r := chi.NewRouter()
	RegisterRoutes(r, h)

	serve := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/sessions/done/report").Code)
	assert.Equal(t, http.StatusNotFound, serve(http.MethodPost, "/sessions/missing/report").Code)
	assert.Equal(t, http.StatusConflict, serve(http.MethodPost, "/sessions/open/report").Code)

	w := serve(http.MethodPost, "/sessions/done/report")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(http.MethodGet, "/sessions/done/report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "# Legal Intake Report\n\n## Matter Summary"))

	w = serve(http.MethodGet, "/sessions/done/report?format=json")
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, w.Body.String(), `"session_id":"done"`)

	w = serve(http.MethodGet, "/sessions/done/report.html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h2 id=\"parties\">Parties</h2>")
}

func TestRoutesReportSectionFailure(t *testing.T) {
	p := llmtest.New().
		Reply("skeleton", `{"skeleton":[{"heading":"Matter Summary","sub_headings":[]}]}`).
		Fail("section", errors.New("boom"))
	sessions := fakeSessions{"done": {ID: "done", State: intake.StateComplete}}
	h := &Handler{Pipeline: newTestPipeline(p), Store: newTestStore(t), Sessions: sessions}
	r := chi.NewRouter()
	RegisterRoutes(r, h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions/done/report", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	_, err := h.Store.Latest(context.Background(), "done")
	assert.ErrorIs(t, err, ErrNoReport)
}
