// Command validate checks a spreadsheet export before it is published to the
// map: rows the normalizer would drop, duplicate ids, rows missing an id, and
// facet values outside the agreed vocabulary.
//
// Usage:
//
//	go run ./cmd/validate -file data/sites.csv
//	go run ./cmd/validate -url "$CSV_URL" -strict-vocab
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/heritage-sites-service/internal/adapter/sheet"
	"github.com/couchcryptid/heritage-sites-service/internal/domain"
	"github.com/couchcryptid/heritage-sites-service/internal/observability"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name     string
	errors   []string
	advisory bool // failures are reported but do not fail the run
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	file := flag.String("file", "", "path to a local CSV export")
	url := flag.String("url", "", "URL of a published CSV export")
	strictVocab := flag.Bool("strict-vocab", false, "fail on categoria/periodo values outside the known vocabulary")
	flag.Parse()

	if (*file == "") == (*url == "") {
		flag.Usage()
		os.Exit(1)
	}

	batch, err := load(*file, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(batch, *strictVocab, os.Stdout))
}

func load(file, url string) (sheet.Batch, error) {
	if url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		client := sheet.NewClient(30*time.Second, 10<<20, logger, observability.NewMetricsForTesting())
		return client.FetchBatch(ctx, url)
	}

	f, err := os.Open(file)
	if err != nil {
		return sheet.Batch{}, err
	}
	defer f.Close()
	return sheet.Parse(f, sheet.SourceTag)
}

func run(batch sheet.Batch, strictVocab bool, w io.Writer) int {
	fmt.Fprintln(w, "=== Heritage Sites Spreadsheet Validation ===")
	fmt.Fprintln(w)

	phases := []*phase{
		validateRows(batch),
		validateIdentity(batch),
		validateVocabulary(batch, !strictVocab),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			if p.advisory {
				status = fmt.Sprintf("\033[33mWARN (%d)\033[0m", len(p.errors))
			} else {
				status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
				allPassed = false
			}
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rows: %d read, %d accepted, %d rejected\n", batch.Rows, len(batch.Points), len(batch.Rejected))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

// sheetLine maps a 0-based data-row index to its spreadsheet line (header is line 1).
func sheetLine(index int) int { return index + 2 }

func validateRows(batch sheet.Batch) *phase {
	p := &phase{name: "Rows accepted by the normalizer"}
	for _, r := range batch.Rejected {
		p.errorf("line %d: %v", sheetLine(r.Index), r.Err)
	}
	return p
}

func validateIdentity(batch sheet.Batch) *phase {
	p := &phase{name: "Point ids unique and present"}
	seen := make(map[string]int, len(batch.Points))
	for i, pt := range batch.Points {
		if strings.HasPrefix(pt.ID, sheet.SourceTag+"-") {
			p.errorf("point %d (%q): missing id, synthesized %q changes when rows move", i, pt.Title, pt.ID)
		}
		if first, dup := seen[pt.ID]; dup {
			p.errorf("id %q used by points %d and %d", pt.ID, first, i)
			continue
		}
		seen[pt.ID] = i
	}
	return p
}

func validateVocabulary(batch sheet.Batch, advisory bool) *phase {
	p := &phase{name: "Facet values in known vocabulary", advisory: advisory}
	for _, v := range domain.DistinctValues(batch.Points, domain.FieldCategoria) {
		if !slices.Contains(domain.KnownCategorias, v) {
			p.errorf("categoria %q is not one of %s", v, strings.Join(domain.KnownCategorias, ", "))
		}
	}
	for _, v := range domain.DistinctValues(batch.Points, domain.FieldPeriodo) {
		if !slices.Contains(domain.KnownPeriodos, v) {
			p.errorf("periodo %q is not one of %s", v, strings.Join(domain.KnownPeriodos, ", "))
		}
	}
	return p
}
