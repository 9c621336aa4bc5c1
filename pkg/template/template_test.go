package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SubstitutesVariables(t *testing.T) {
	data := map[string]any{
		"payload":    map[string]any{"order_id": "A-100"},
		"subscriber": map[string]any{"first_name": "Ada"},
	}

	result, err := Render("Hi {{.subscriber.first_name}}, order {{.payload.order_id}} shipped", data)

	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, order A-100 shipped", result)
}

func TestRender_MissingVariableIsAnError(t *testing.T) {
	_, err := Render("Hi {{.payload.missing_field}}", map[string]any{
		"payload": map[string]any{"order_id": "A-100"},
	})

	require.Error(t, err)
}

func TestRender_MalformedTemplateIsAnError(t *testing.T) {
	_, err := Render("Hi {{.payload.order_id", map[string]any{
		"payload": map[string]any{"order_id": "A-100"},
	})

	require.Error(t, err)
}

func TestRender_Functions(t *testing.T) {
	result, err := Render("{{upper .payload.code}}", map[string]any{
		"payload": map[string]any{"code": "vip"},
	})

	require.NoError(t, err)
	assert.Equal(t, "VIP", result)
}

func TestRenderValue_CoercesScalars(t *testing.T) {
	data := map[string]any{"payload": map[string]any{
		"total": 42.5,
		"vip":   true,
		"name":  "Ada",
	}}

	total, err := RenderValue("{{.payload.total}}", data)
	require.NoError(t, err)
	assert.Equal(t, 42.5, total)

	vip, err := RenderValue("{{.payload.vip}}", data)
	require.NoError(t, err)
	assert.Equal(t, true, vip)

	name, err := RenderValue("{{.payload.name}}", data)
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders("{{.payload.order_id}}"))
	assert.False(t, HasPlaceholders("static content"))
}
