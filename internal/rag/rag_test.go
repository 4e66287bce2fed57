package rag

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestDocumentRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{
			name: "with source",
			doc:  Document{Content: "Attention is all you need.", Source: "data/docs/attention.pdf", Page: 2},
			want: "page_content=Attention is all you need. metadata={'source': 'data/docs/attention.pdf', 'page': 2}",
		},
		{
			name: "without source",
			doc:  Document{Content: "orphan chunk"},
			want: "page_content=orphan chunk",
		},
		{
			name: "escapes backslashes and line breaks",
			doc:  Document{Content: "C:\\new\nnext\tcol", Source: "a.pdf", Page: 1},
			want: `page_content=C:\\new\nnext\tcol metadata={'source': 'a.pdf', 'page': 1}`,
		},
		{
			name: "apostrophe in source",
			doc:  Document{Content: "x", Source: "docs/o'neil.pdf"},
			want: `page_content=x metadata={'source': "docs/o'neil.pdf", 'page': 0}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.doc.Record(); got != tc.want {
				t.Errorf("Record() =\n%q\nwant\n%q", got, tc.want)
			}
		})
	}
}

// fakeEmbedder maps each text to a fixed vector.
type fakeEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vecs[t]
	}
	return out, nil
}

func TestNewRetriever_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, NewSQLiteStore(t.TempDir()), 3); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&fakeEmbedder{}, nil, 3); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestRetriever_EndToEndSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "processed")
	store := NewSQLiteStore(dir)
	defer store.Close()

	emb := &fakeEmbedder{vecs: map[string][]float32{
		"transformers": {1, 0, 0},
	}}
	r, err := NewRetriever(emb, store, 2)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := r.Exists(ctx)
	if err != nil || ok {
		t.Fatalf("Exists() before ingest = %v, %v; want false, nil", ok, err)
	}

	docs := []Document{
		{ID: "a", Content: "self-attention layers", Source: "attention.pdf", Page: 0},
		{ID: "b", Content: "convolutional baselines", Source: "cnn.pdf", Page: 3},
		{ID: "c", Content: "positional encodings", Source: "attention.pdf", Page: 1, Metadata: map[string]string{"kind": "paper"}},
	}
	vecs := [][]float32{{0.9, 0.1, 0}, {0, 1, 0}, {0.7, 0.3, 0}}
	if err := store.Upsert(ctx, docs, vecs); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	ok, err = r.Exists(ctx)
	if err != nil || !ok {
		t.Fatalf("Exists() after ingest = %v, %v; want true, nil", ok, err)
	}

	got, err := r.Retrieve(ctx, "transformers", 0)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected default top-k of 2, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("ranking = [%s %s], want [a c]", got[0].ID, got[1].ID)
	}
	if got[1].Page != 1 || got[1].Metadata["kind"] != "paper" {
		t.Errorf("round-trip lost fields: %+v", got[1])
	}
}

func TestRetriever_EmbedError(t *testing.T) {
	t.Parallel()

	r, err := NewRetriever(&fakeEmbedder{err: errors.New("embedder down")}, NewSQLiteStore(t.TempDir()), 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Retrieve(context.Background(), "q", 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestSQLiteStore_UpsertReplacesAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "db"))
	defer store.Close()

	if err := store.Upsert(ctx, []Document{{ID: "x", Content: "old", Source: "s.pdf"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(ctx, []Document{{ID: "x", Content: "new", Source: "s.pdf"}}, [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "new" {
		t.Fatalf("Search() = %+v, want single replaced doc", got)
	}

	if err := store.Delete(ctx, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	got, err = store.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty store after delete, got %d docs", len(got))
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	first := NewSQLiteStore(dir)
	if err := first.Upsert(ctx, []Document{{ID: "p", Content: "kept", Source: "k.pdf", Page: 4}}, [][]float32{{0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := NewSQLiteStore(dir)
	defer second.Close()
	got, err := second.Search(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Page != 4 {
		t.Fatalf("Search() after reopen = %+v", got)
	}
}

func TestSQLiteStore_MismatchedLengths(t *testing.T) {
	t.Parallel()

	store := NewSQLiteStore(t.TempDir())
	defer store.Close()
	if err := store.Upsert(context.Background(), []Document{{ID: "a"}}, nil); err == nil {
		t.Fatal("expected error for mismatched embeddings")
	}
}

func TestSQLiteStore_SearchUnbuilt(t *testing.T) {
	t.Parallel()

	store := NewSQLiteStore(filepath.Join(t.TempDir(), "missing"))
	got, err := store.Search(context.Background(), []float32{1}, 3)
	if err != nil || got != nil {
		t.Fatalf("Search() on unbuilt store = %v, %v", got, err)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b []float32
		want float32
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 0}, []float32{1}, 0},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range tests {
		if got := cosine(tc.a, tc.b); got != tc.want {
			t.Errorf("cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	if _, err := OpenStore(StoreConfig{Backend: "chroma"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := OpenStore(StoreConfig{Backend: BackendSQLite}); err == nil {
		t.Error("expected error for missing directory")
	}
	s, err := OpenStore(StoreConfig{Backend: BackendSQLite, Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("OpenStore() = %T, want *SQLiteStore", s)
	}
}
