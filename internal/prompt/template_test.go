package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropguide/backend/internal/schema"
)

var landShape = schema.New("land",
	schema.String("photoDataUri", "").WithFormat(schema.FormatImage),
	schema.String("landSize", ""),
	schema.String("irrigationSystem", ""),
	schema.Number("rainfall", "").Optional(),
)

func TestCompile_RejectsUndeclaredPlaceholder(t *testing.T) {
	_, err := Compile("bad", "Soil: {{soilType}}", landShape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"soilType"`)
}

func TestCompile_RejectsMediaOnPlainField(t *testing.T) {
	_, err := Compile("bad", "{{media landSize}}", landShape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data URI format")
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("bad", "{{}}", landShape) })
}

func TestRender_SubstitutesFieldsAndMedia(t *testing.T) {
	tmpl := MustCompile("crops",
		"Land Size: {{landSize}} acres\nIrrigation: {{ irrigationSystem }}\nRain: {{rainfall}}\nImage: {{media photoDataUri}}",
		landShape)

	assert.Equal(t, []string{"landSize", "irrigationSystem", "rainfall"}, tmpl.Fields())
	assert.Equal(t, []string{"photoDataUri"}, tmpl.MediaFields())

	payload, err := tmpl.Render(map[string]any{
		"photoDataUri":     "data:image/png;base64,AAAA",
		"landSize":         "50",
		"irrigationSystem": "drip",
		"rainfall":         612.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "Land Size: 50 acres\nIrrigation: drip\nRain: 612.5\nImage: [image 1]", payload.Text)
	require.Len(t, payload.Media, 1)
	assert.Equal(t, "image/png", payload.Media[0].MIMEType)
	assert.Equal(t, []byte{0, 0, 0}, payload.Media[0].Data)
}

func TestRender_AbsentOptionalFieldRendersEmpty(t *testing.T) {
	tmpl := MustCompile("rain", "Rain: {{rainfall}}.", landShape)
	payload, err := tmpl.Render(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Rain: .", payload.Text)
	assert.Empty(t, payload.Media)
}

func TestRender_InvalidMedia(t *testing.T) {
	tmpl := MustCompile("img", "{{media photoDataUri}}", landShape)
	_, err := tmpl.Render(map[string]any{"photoDataUri": "nope"})
	assert.Error(t, err)
}
