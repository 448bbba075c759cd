package visionrefiner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelgen/internal/labeldoc"
	"labelgen/internal/llmharness"
)

func testDoc() labeldoc.Document {
	return labeldoc.Document{
		Version: 1,
		Canvas:  labeldoc.Canvas{Width: 750, Height: 1125, DPI: 300, Background: "#ffffff"},
	}
}

func testSubmission() Submission {
	return Submission{
		ProducerName: "Clos du Vent",
		WineName:     "Reserve",
		Vintage:      "2020",
		Variety:      "Pinot Noir",
		Region:       "Willamette Valley",
		Appellation:  "Dundee Hills",
		Style:        StyleClassic,
	}
}

func TestProposeEditsParsesOperations(t *testing.T) {
	reply := `{"operations":[{"type":"update_element","elementId":"year-text","property":"color","value":"#4A4A4A"}],"reasoning":"contrast","confidence":0.8}`
	model := &llmharness.MockModel{Responses: map[string]string{"refine": reply}}
	h := llmharness.New(model, nil)
	r := New(h, "vision-model")

	p, err := r.ProposeEdits(context.Background(), testSubmission(), testDoc(), "https://cdn.test/preview.png")
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)
	assert.Equal(t, OpUpdateElement, p.Operations[0].Type)
	assert.Equal(t, "year-text", p.Operations[0].ElementID)
	require.NotNil(t, p.Confidence)
	assert.Equal(t, 0.8, *p.Confidence)
}

func TestProposeEditsPassesThroughOverLimitOperations(t *testing.T) {
	// The refiner itself does not enforce the ≤10 cap; that's C7's job
	// (it truncates and records the excess as rejected).
	ops := `{"type":"update_element","elementId":"x","property":"color","value":"#000000"},`
	body := "["
	for i := 0; i < 15; i++ {
		body += ops
	}
	body = body[:len(body)-1] + "]"
	reply := `{"operations":` + body + `}`
	model := &llmharness.MockModel{Responses: map[string]string{"refine": reply}}
	h := llmharness.New(model, nil)
	r := New(h, "vision-model")

	p, err := r.ProposeEdits(context.Background(), testSubmission(), testDoc(), "https://cdn.test/preview.png")
	require.NoError(t, err)
	assert.Len(t, p.Operations, 15)
}

func TestProposeEditsRejectsUnknownOpType(t *testing.T) {
	reply := `{"operations":[{"type":"delete_everything","elementId":"x"}]}`
	model := &llmharness.MockModel{Responses: map[string]string{"refine": reply}}
	h := llmharness.New(model, nil)
	r := New(h, "vision-model")

	_, err := r.ProposeEdits(context.Background(), testSubmission(), testDoc(), "https://cdn.test/preview.png")
	assert.Error(t, err)
}

func TestProposeEditsEmptyOperationsOK(t *testing.T) {
	reply := `{"operations":[],"reasoning":"looks great already"}`
	model := &llmharness.MockModel{Responses: map[string]string{"refine": reply}}
	h := llmharness.New(model, nil)
	r := New(h, "vision-model")

	p, err := r.ProposeEdits(context.Background(), testSubmission(), testDoc(), "https://cdn.test/preview.png")
	require.NoError(t, err)
	assert.Empty(t, p.Operations)
}
