package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewObjectKey(t *testing.T) {
	key := NewObjectKey("delivery_photos", "Front Door.JPG")

	assert.True(t, strings.HasPrefix(key, "delivery_photos/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.NotEqual(t, key, NewObjectKey("delivery_photos", "Front Door.JPG"))
}

func TestValidateFileSize(t *testing.T) {
	assert.NoError(t, ValidateFileSize(10, 10))
	assert.Error(t, ValidateFileSize(11, 10))
	assert.Error(t, ValidateFileSize(0, 10))
}

func TestValidateContentType(t *testing.T) {
	allowed := []string{"image/jpeg", "image/png"}

	assert.NoError(t, ValidateContentType("image/png", allowed))
	assert.Error(t, ValidateContentType("application/pdf", allowed))
}
