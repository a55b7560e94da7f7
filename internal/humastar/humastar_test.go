package humastar

import (
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"field":"name","value":42,"flag":true,"none":null,"popup":"abc"}`))
	require.NoError(t, err)

	assert.Equal(t, "name", s.String("field"))
	assert.Equal(t, "", s.String("value"))
	assert.Equal(t, 42.0, s.Float("value"))
	assert.Equal(t, "42", s.Value("value"))
	assert.Equal(t, "true", s.Value("flag"))
	assert.Equal(t, "", s.Value("none"))
	assert.True(t, s.Has("none"))
	assert.False(t, s.Has("missing"))

	empty, err := ParseSignals(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSignalsInputParse(t *testing.T) {
	in := &SignalsInput{RawBody: []byte(`{not json`)}
	_, err := in.Parse()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.GetStatus())
}
