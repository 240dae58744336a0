package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heritage-sites-service/internal/adapter/sheet"
)

func parse(t *testing.T, csv string) sheet.Batch {
	t.Helper()
	batch, err := sheet.Parse(strings.NewReader(csv), sheet.SourceTag)
	require.NoError(t, err)
	return batch
}

func TestRun_AllPass(t *testing.T) {
	batch := parse(t, "id,title,lat,lng,categoria,periodo\n"+
		"1,Site A,-20.5,-51.2,Arqueológico,Colonial\n"+
		"2,Site B,-21.5,-51.9,Histórico,Imperial\n")

	var out bytes.Buffer
	assert.Equal(t, 0, run(batch, true, &out))
	assert.Contains(t, out.String(), "Rows: 2 read, 2 accepted, 0 rejected")
	assert.Contains(t, out.String(), "All validations passed.")
}

func TestRun_RejectedAndDuplicateRowsFail(t *testing.T) {
	batch := parse(t, "id,title,lat,lng\n"+
		"1,Site A,-20.5,-51.2\n"+
		"1,Site A again,-20.6,-51.3\n"+
		",No id,-20.7,-51.4\n"+
		"4,Bad,200,-51.2\n")

	var out bytes.Buffer
	assert.Equal(t, 1, run(batch, false, &out))

	got := out.String()
	assert.Contains(t, got, "line 5:")
	assert.Contains(t, got, `id "1" used by points 0 and 1`)
	assert.Contains(t, got, `missing id, synthesized "csv-2"`)
	assert.Contains(t, got, "Validation FAILED.")
}

func TestRun_VocabularyAdvisoryUnlessStrict(t *testing.T) {
	csv := "id,title,lat,lng,categoria\n" +
		"1,Site A,-20.5,-51.2,Misc\n"

	var out bytes.Buffer
	assert.Equal(t, 0, run(parse(t, csv), false, &out))
	assert.Contains(t, out.String(), "WARN (1)")
	assert.Contains(t, out.String(), `categoria "Misc" is not one of`)

	out.Reset()
	assert.Equal(t, 1, run(parse(t, csv), true, &out))
	assert.Contains(t, out.String(), "FAIL (1 errors)")
}

func TestSheetLine(t *testing.T) {
	assert.Equal(t, 2, sheetLine(0))
}
