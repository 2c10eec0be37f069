package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type changeTierInput struct {
	Tier       string `json:"tier" validate:"required,tier"`
	Visibility string `json:"visibility" validate:"omitempty,visibility_label"`
	Message    string `json:"message" validate:"max=300"`
}

func TestValidateCustomTags(t *testing.T) {
	assert.Nil(t, Validate(changeTierInput{Tier: "CLOSE_FRIEND", Visibility: "FRIENDS"}))
	assert.Nil(t, Validate(changeTierInput{Tier: "special"}))

	errs := Validate(changeTierInput{Tier: "NO_RELATION", Visibility: "PUBLIC"})
	assert.Contains(t, errs["tier"], "Invalid tier")
	assert.Contains(t, errs["visibility"], "Invalid visibility")
}

func TestValidateUsesJSONNames(t *testing.T) {
	long := make([]byte, 301)
	for i := range long {
		long[i] = 'a'
	}

	errs := Validate(changeTierInput{Tier: "FRIEND", Message: string(long)})
	assert.Equal(t, "Value is too long (max: 300)", errs["message"])
}
