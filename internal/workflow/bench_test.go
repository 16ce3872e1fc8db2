package workflow

import (
	"context"
	"testing"

	"github.com/chameleon-ai/chameleon/internal/classifier"
	"github.com/chameleon-ai/chameleon/internal/embedding"
	"github.com/chameleon-ai/chameleon/internal/topic"
)

func benchWorkflow(b *testing.B) *Workflow {
	b.Helper()
	store := digestCorpus()
	reg := topic.Default()
	emb, err := embedding.NewHashing(384)
	if err != nil {
		b.Fatal(err)
	}
	clf, err := classifier.NewCentroid(context.Background(), emb, store, reg.Len(), 10)
	if err != nil {
		b.Fatal(err)
	}
	return New(NewClassifyStage(emb, clf, reg), NewRetrieveStage(reg, store))
}

func BenchmarkRun(b *testing.B) {
	wf := benchWorkflow(b)
	ctx := context.Background()
	queries := []string{"Did the Lakers win?", "What is happening with Bitcoin?", "GPU announcement"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := wf.Run(ctx, queries[i%len(queries)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRunParallel(b *testing.B) {
	wf := benchWorkflow(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := wf.Run(ctx, "Did the Lakers win?"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
