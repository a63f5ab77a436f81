package utils

import "github.com/go-playground/validator/v10"

// Validate is a single shared validator instance, same pattern other
// go-playground/validator users follow (one instance reused, not
// allocated per call).
var Validate = validator.New()
