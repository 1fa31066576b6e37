package cmd

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/loadshed-mqtt/app"
	"github.com/kilianp07/loadshed-mqtt/core/status"
)

func sampleReport() app.Report {
	start := time.Date(2023, 3, 14, 14, 0, 0, 0, time.UTC)
	return app.Report{
		AreaID: "capetown-7-gardens",
		Area:   "Gardens (7)",
		Status: status.Status{Note: status.NotSheddingNote, NextStart: status.At(start), Warning15Min: true},
	}
}

func TestWriteReportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "yaml", sampleReport()))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "capetown-7-gardens", got["area_id"])
	st := got["status"].(map[string]any)
	assert.Equal(t, "2023-03-14T14:00:00Z", st["next_start"])
	assert.Equal(t, "", st["end_of_current"])
	assert.Equal(t, true, st["warning_15min"])
}

func TestWriteReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, "json", sampleReport()))

	var got struct {
		Status struct {
			Note      string `json:"note"`
			NextStart string `json:"next_start"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, status.NotSheddingNote, got.Status.Note)
	assert.Equal(t, "2023-03-14T14:00:00Z", got.Status.NextStart)
}

func TestWriteReportUnknownFormat(t *testing.T) {
	assert.Error(t, writeReport(&bytes.Buffer{}, "xml", sampleReport()))
}
