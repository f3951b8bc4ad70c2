package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSplitPart(t *testing.T) {
	part, err := GetSplitPart("https://www.skipthedishes.com/vancouver/noodle-box", "/", 4)
	assert.NoError(t, err)
	assert.Equal(t, "noodle-box", part)

	_, err = GetSplitPart("a/b", "/", 5)
	assert.Error(t, err)
	_, err = GetSplitPart("a/b", "/", -1)
	assert.Error(t, err)
}

func TestLastPathSegment(t *testing.T) {
	assert.Equal(t, "noodle-box", LastPathSegment("/vancouver/noodle-box/"))
	assert.Equal(t, "x", LastPathSegment("x"))
	assert.Equal(t, "", LastPathSegment("/"))
}

func TestFormatCityName(t *testing.T) {
	assert.Equal(t, "vancouver", FormatCityName("Vancouver"))
	assert.Equal(t, "north-vancouver", FormatCityName("  North   Vancouver "))
	assert.Equal(t, "100-mile-house", FormatCityName("100 Mile House"))
	assert.Equal(t, "qualicum-beach", FormatCityName("Qualicum Beach!"))
	assert.Equal(t, "port-coquitlam", FormatCityName("Port - Coquitlam"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "noodle-box", SanitizeFilename("noodle-box"))
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b?c"))
	assert.Equal(t, "_", SanitizeFilename("../"))
	assert.Equal(t, "vancouver", SanitizeFilename("vancouver"))
}
