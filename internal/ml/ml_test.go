package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shenikar/rescue_dispatch_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const severityJSON = `{
  "labels": ["low", "medium", "high", "critical"],
  "intercepts": [0.2, 0.1, 0, -0.3],
  "weights": {
    "drowning": [-1, -0.5, 1, 3],
    "children": [-0.5, 0, 0.5, 1.5],
    "streetlight": [2, 0.5, -1, -2],
    "power cut": [1.5, 1, -1, -1.5]
  }
}`

func TestSeverityModel_Predict(t *testing.T) {
	m, err := ParseSeverityModel([]byte(severityJSON))
	require.NoError(t, err)

	label, conf, ok := m.Predict("Children drowning near the pier")
	require.True(t, ok)
	assert.Equal(t, models.SeverityCritical, label)
	assert.Greater(t, conf, 0.25)
	assert.LessOrEqual(t, conf, 1.0)

	label, _, ok = m.Predict("streetlight broken after power cut")
	require.True(t, ok)
	assert.Equal(t, models.SeverityLow, label)

	_, _, ok = m.Predict("  !!! ")
	assert.False(t, ok)
}

func TestParseSeverityModel_Invalid(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"labels": [], "intercepts": []}`,
		`{"labels": ["low","extreme"], "intercepts": [0, 0]}`,
		`{"labels": ["low","high"], "intercepts": [0, 0], "weights": {"x": [1]}}`,
	} {
		_, err := ParseSeverityModel([]byte(data))
		assert.Error(t, err, data)
	}
}

func TestLoadModels_MissingFileIsNotAnError(t *testing.T) {
	sev, err := LoadSeverityModel(filepath.Join(t.TempDir(), "absent.json"))
	assert.NoError(t, err)
	assert.Nil(t, sev)

	asg, err := LoadAssignmentModel("")
	assert.NoError(t, err)
	assert.Nil(t, asg)
}

func TestLoadAssignmentModel_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assignment.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"coef": [2.0, -0.05, -0.3], "intercept": 0.5}`), 0o600))

	m, err := LoadAssignmentModel(path)
	require.NoError(t, err)
	require.NotNil(t, m)

	near, err := m.PredictAssignment(1, 1, 0)
	require.NoError(t, err)
	far, err := m.PredictAssignment(1, 80, 6)
	require.NoError(t, err)

	assert.Greater(t, near, far)
	assert.Greater(t, near, 0.5)
	assert.Less(t, far, 0.5)
}

func TestAssignmentModel_Failures(t *testing.T) {
	m, err := ParseAssignmentModel([]byte(`{"coef": [1, 2], "intercept": 0}`))
	require.NoError(t, err)
	_, err = m.PredictAssignment(1, 1, 1)
	assert.Error(t, err)

	raw, err := ParseAssignmentModel([]byte(`{"coef": [1, 1, 1], "intercept": 1, "raw": true}`))
	require.NoError(t, err)
	v, err := raw.PredictAssignment(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"power", "cut", "here", "power cut", "cut here"}, Terms("Power-cut here!"))
}
