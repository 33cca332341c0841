package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"fx-converter/internal/rates"
)

// ShowOptions configure the rates command.
type ShowOptions struct {
	// Codes restricts the listing; empty lists every currency.
	Codes []string
	Out   io.Writer
}

// ShowRates fetches the rate table once and prints it. A failing source
// prints the fallback table, the same one the server would serve.
func (a *App) ShowRates(ctx context.Context, opts ShowOptions) error {
	cache := a.newCache(nil, nil)
	defer func() { _ = cache.Shutdown(context.Background()) }()

	entry, err := cache.Rates(ctx)
	if err != nil {
		return err
	}

	codes := entry.Table.Codes()
	if len(opts.Codes) > 0 {
		codes = codes[:0]
		for _, raw := range opts.Codes {
			code := strings.ToUpper(strings.TrimSpace(raw))
			if _, ok := entry.Table.Get(code); !ok {
				return fmt.Errorf("currency %s not in rate table", code)
			}
			codes = append(codes, code)
		}
	}

	return printTable(opts.Out, entry, codes)
}

func printTable(out io.Writer, entry rates.Entry, codes []string) error {
	source := "live"
	if entry.Fallback {
		source = "fallback"
	}
	fmt.Fprintf(out, "reference %s, fetched %s (%s)\n",
		entry.Table.Reference(),
		entry.FetchedAt.Format("2006-01-02 15:04:05"),
		source,
	)

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Code\tPer 1 "+entry.Table.Reference()+"\tOverride")
	for _, code := range codes {
		value, _ := entry.Table.Get(code)
		mark := ""
		if entry.Table.Overridden(code) {
			mark = "yes"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", code, decimal.NewFromFloat(value).StringFixed(6), mark)
	}
	return writer.Flush()
}
