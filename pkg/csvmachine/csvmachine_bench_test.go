package csvmachine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/csvmachine"
	"github.com/ajitpratap0/csvmachine/pkg/testutil"
)

func benchParser() *csvmachine.Parser[basic] {
	p := csvmachine.New[basic](csvmachine.WithLogger(zap.NewNop()))
	csvmachine.Property[int](p, "id", func(b *basic) any { return &b.B })
	csvmachine.Property[string](p, "name", func(b *basic) any { return &b.A })
	csvmachine.Property[decimal.Decimal](p, "amount", func(b *basic) any { return &b.C })
	return p
}

func BenchmarkParse(b *testing.B) {
	input := testutil.GenerateCSV(100000)
	p := benchParser()

	for _, threads := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("threads=%d", threads), func(b *testing.B) {
			cfg := config.NewConfiguration()
			cfg.FactoryThreads = threads
			b.SetBytes(int64(len(input)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				rows, err := p.ParseString(context.Background(), input, cfg)
				if err != nil {
					b.Fatal(err)
				}
				if len(rows) != 100000 {
					b.Fatalf("got %d rows", len(rows))
				}
			}
		})
	}
}
