package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/kart-io/bookqa/internal/model"
)

// TagQAMode validates that a field holds a supported question-answering mode.
const TagQAMode = "qamode"

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation(TagQAMode, validateQAMode)
	}
}

func validateQAMode(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // required 单独校验空值
	}
	return model.Mode(value).Valid()
}
