package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineJSON = `{
  "transformOptions": {
    "pdfOptions": [
      {"value": {"name": "pageLimit"}},
      {"group": {"required": true, "transformOptions": [
        {"value": {"name": "width", "required": true}},
        {"value": {"name": "height"}}
      ]}}
    ]
  },
  "transformers": [
    {
      "transformerName": "TxT2Pdf",
      "supportedSourceAndTargetList": [
        {"sourceMediaType": "text/plain", "targetMediaType": "application/pdf", "maxSourceSizeBytes": 5000, "priority": 45}
      ],
      "transformOptions": ["pdfOptions"]
    },
    {
      "transformerName": "pipe",
      "transformerPipeline": [
        {"transformerName": "TxT2Pdf", "targetMediaType": "application/pdf"},
        {"transformerName": "PdfToPng"}
      ]
    }
  ]
}`

const engineYAML = `
transformOptions:
  pdfOptions:
    - value: {name: pageLimit}
    - group:
        required: true
        transformOptions:
          - value: {name: width, required: true}
          - value: {name: height}
transformers:
  - transformerName: TxT2Pdf
    supportedSourceAndTargetList:
      - sourceMediaType: text/plain
        targetMediaType: application/pdf
        maxSourceSizeBytes: 5000
        priority: 45
    transformOptions: [pdfOptions]
  - transformerName: pipe
    transformerPipeline:
      - transformerName: TxT2Pdf
        targetMediaType: application/pdf
      - transformerName: PdfToPng
`

func wantParsed() TransformConfig {
	return TransformConfig{
		TransformOptions: map[string]Options{
			"pdfOptions": {
				Value("pageLimit", false),
				Group(true, Value("width", true), Value("height", false)),
			},
		},
		Transformers: []Transformer{
			{
				Name:      "TxT2Pdf",
				Supported: []SupportedSourceAndTarget{Pair("text/plain", "application/pdf", 5000, 45)},
				Options:   []string{"pdfOptions"},
			},
			{
				Name:     "pipe",
				Pipeline: []TransformStep{Step("TxT2Pdf", "application/pdf"), Step("PdfToPng", "")},
			},
		},
	}
}

func TestParseJSON(t *testing.T) {
	cfg, err := ParseJSON([]byte(engineJSON))
	require.NoError(t, err)
	assert.Equal(t, wantParsed(), cfg)
}

func TestParseYAML(t *testing.T) {
	cfg, err := ParseYAML([]byte(engineYAML))
	require.NoError(t, err)
	assert.Equal(t, wantParsed(), cfg)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "engine.json")
	yamlPath := filepath.Join(dir, "engine.yml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(engineJSON), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte(engineYAML), 0o644))

	fromJSON, err := ParseFile(jsonPath)
	require.NoError(t, err)
	fromYAML, err := ParseFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)

	_, err = ParseFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestParseRejectsBadOption(t *testing.T) {
	_, err := ParseJSON([]byte(`{"transformOptions": {"x": [{"name": "loose"}]}, "transformers": []}`))
	assert.ErrorContains(t, err, "value or a group")
}

func TestMarshalEmptyConfig(t *testing.T) {
	data, err := json.Marshal(TransformConfig{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"transformOptions": {}, "transformers": []}`, string(data))
}

func TestMarshalOptions(t *testing.T) {
	data, err := json.Marshal(Options{Value("a", true), Group(false, Value("b", false))})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"value":{"name":"a","required":true}},{"group":{"transformOptions":[{"value":{"name":"b"}}]}}]`,
		string(data))
}
