package handlers

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"promptfinder/internal/models"
	"promptfinder/internal/storage"
)

var registerOnce sync.Once

func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("content_type", func(fl validator.FieldLevel) bool {
			_, ok := storage.KindForContentType(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("ai_generator", func(fl validator.FieldLevel) bool {
			_, ok := models.LookupGenerator(fl.Field().String())
			return ok
		})
	})
}

// bindingMessage turns validator output into a sentence for the client.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body."
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, " ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", field)
	case "content_type":
		return "Invalid file type. Allowed: JPEG, PNG, GIF, WebP, MP4, WebM, MOV."
	case "ai_generator":
		return fmt.Sprintf("Unknown AI generator: %v.", fe.Value())
	case "max":
		if field == "Tags" {
			return fmt.Sprintf("At most %d tags are allowed.", models.MaxTagsPerPost)
		}
		return fmt.Sprintf("%s must be at most %s characters.", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s.", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL.", field)
	default:
		return fmt.Sprintf("%s is invalid.", field)
	}
}
