// Command genfixture reads a saved IPHAN WFS response and generates fixtures
// for the spreadsheet source and the API tests. Features go through the same
// normalizer the WFS client uses, so the fixtures match live behavior.
//
// Usage:
//
//	curl -o data/iphan.geojson "$WFS_PROXY_URL?..."
//	go run ./cmd/genfixture \
//	  -geojson data/iphan.geojson \
//	  -csv-out data/mock/sites.csv \
//	  -json-out data/mock/sites.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/heritage-sites-service/internal/adapter/wfs"
	"github.com/couchcryptid/heritage-sites-service/internal/domain"
)

// csvHeader is the canonical spreadsheet column layout.
var csvHeader = []string{
	"id", "title", "location", "lat", "lng",
	"categoria", "periodo", "caracteristicas", "soil", "risks", "responsavel",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	in := flag.String("geojson", "", "saved WFS GeoJSON FeatureCollection")
	csvOut := flag.String("csv-out", "", "output path for the spreadsheet CSV fixture")
	jsonOut := flag.String("json-out", "", "output path for the normalized points JSON fixture")
	flag.Parse()

	if *in == "" || *csvOut == "" || *jsonOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -geojson, -csv-out, -json-out")
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read geojson: %w", err)
	}
	points, rejected, err := normalize(data)
	if err != nil {
		return err
	}
	log.Printf("features: %d accepted, %d rejected", len(points), rejected)

	if err := writeFile(*csvOut, func(w io.Writer) error { return writeCSV(w, points) }); err != nil {
		return fmt.Errorf("writing CSV fixture: %w", err)
	}
	log.Printf("wrote CSV fixture: %s", *csvOut)

	if err := writeFile(*jsonOut, func(w io.Writer) error { return writeJSON(w, points) }); err != nil {
		return fmt.Errorf("writing JSON fixture: %w", err)
	}
	log.Printf("wrote JSON fixture: %s", *jsonOut)

	printStats(os.Stdout, points)
	return nil
}

func normalize(data []byte) ([]domain.Point, int, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode feature collection: %w", err)
	}

	points := make([]domain.Point, 0, len(fc.Features))
	rejected := 0
	for i, f := range fc.Features {
		p, err := domain.NormalizeFeature(f, i, wfs.SourceTag)
		if err != nil {
			rejected++
			continue
		}
		points = append(points, p)
	}
	return points, rejected, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(w io.Writer, points []domain.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			p.ID, p.Title, p.Location,
			strconv.FormatFloat(p.Lat, 'f', -1, 64),
			strconv.FormatFloat(p.Lng, 'f', -1, 64),
			p.Categoria, p.Periodo, p.Caracteristicas, p.Soil, p.Risks, p.Responsavel,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, points []domain.Point) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(points)
}

type valueCount struct {
	value string
	count int
}

func countBy(points []domain.Point, field domain.Field) []valueCount {
	counts := map[string]int{}
	for _, p := range points {
		counts[field.Value(p)]++
	}
	out := make([]valueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, valueCount{v, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].value < out[j].value
	})
	return out
}

// extent returns the bounding box of points. ok is false for an empty set.
func extent(points []domain.Point) (b domain.BBox, ok bool) {
	for i, p := range points {
		if i == 0 {
			b = domain.BBox{MinLat: p.Lat, MinLng: p.Lng, MaxLat: p.Lat, MaxLng: p.Lng}
			continue
		}
		b.MinLat = min(b.MinLat, p.Lat)
		b.MinLng = min(b.MinLng, p.Lng)
		b.MaxLat = max(b.MaxLat, p.Lat)
		b.MaxLng = max(b.MaxLng, p.Lng)
	}
	return b, len(points) > 0
}

func printStats(w io.Writer, points []domain.Point) {
	fmt.Fprintln(w, "\n=== Stats for updating test assertions ===")
	fmt.Fprintf(w, "Total: %d\n", len(points))

	for _, f := range []struct {
		name  string
		field domain.Field
	}{{"categoria", domain.FieldCategoria}, {"periodo", domain.FieldPeriodo}} {
		fmt.Fprintf(w, "By %s:", f.name)
		for _, vc := range countBy(points, f.field) {
			label := vc.value
			if label == "" {
				label = "(none)"
			}
			fmt.Fprintf(w, " %s=%d", label, vc.count)
		}
		fmt.Fprintln(w)
	}

	if b, ok := extent(points); ok {
		fmt.Fprintf(w, "Extent (minLng,minLat,maxLng,maxLat): %s\n", b)
	}
}
