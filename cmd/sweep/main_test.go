package main

import (
	"bytes"
	"encoding/csv"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mapseg/internal/lidar/sweep"
)

func TestWriteCSV(t *testing.T) {
	ranked := []sweep.ScoredResult{
		{ComboResult: sweep.ComboResult{ParamValues: sweep.Combo{"alpha": 2, "beta": 0.5}, Windows: 3, Scored: 2, FScoreMean: 0.75}, Score: 0.75},
		{ComboResult: sweep.ComboResult{ParamValues: sweep.Combo{"alpha": 1, "beta": 0.5}, Windows: 3}, Score: -math.MaxFloat64},
	}
	var buf bytes.Buffer
	require.NoError(t, writeCSV(&buf, []string{"alpha", "beta"}, ranked))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"rank", "score", "alpha", "beta", "windows", "scored"}, records[0][:6])
	assert.Equal(t, []string{"1", "0.750000", "2", "0.5", "3", "2"}, records[1][:6])
	assert.Equal(t, "0.750000", records[1][10])
	assert.Equal(t, "2", records[2][0])
}

func TestParamFlags(t *testing.T) {
	var p paramFlags
	require.NoError(t, p.Set("alpha=1:3:1"))
	require.NoError(t, p.Set("beta=5"))
	assert.Equal(t, "alpha=1:3:1 beta=5", p.String())
	assert.Equal(t, []string{"alpha", "beta"}, paramNames([]sweep.Param{{Name: "beta"}, {Name: "alpha"}}))
}
