package embedding

import (
	"context"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short":  "Did the Lakers win?",
	"medium": "The Federal Reserve decided to keep interest rates unchanged while inflation creates pressure on global supply chains.",
	"long": strings.Repeat("Nvidia stocks rose after the GPU announcement. "+
		"Quantum computing will break current encryption methods. ", 20),
}

func BenchmarkTerms(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Terms(text)
			}
		})
	}
}

func BenchmarkHashingEmbed(b *testing.B) {
	emb, err := NewHashing(384)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := emb.Embed(ctx, text); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkHashingEmbedParallel(b *testing.B) {
	emb, err := NewHashing(384)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := emb.Embed(ctx, text); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
