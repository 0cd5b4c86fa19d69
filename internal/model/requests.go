package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// BoxRequest creates or updates a box.
type BoxRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"required,max=50,slug"`
	Description string `json:"description" validate:"max=500"`
	Access      Access `json:"access" validate:"required,oneof=PUBLIC PRIVATE"`
}

// ThreadRequest creates or updates a thread.
type ThreadRequest struct {
	Title       string     `json:"title" validate:"required,max=300"`
	Type        ThreadType `json:"type" validate:"required,oneof=TEXT LINK IMAGE"`
	Content     string     `json:"content" validate:"max=40000"`
	Description string     `json:"description" validate:"max=2000"`
}

// CommentRequest creates a comment or edits its content.
type CommentRequest struct {
	Content  string `json:"content" validate:"required,max=10000"`
	ParentID *int64 `json:"parentId,omitempty" validate:"omitempty,gt=0"`
}

// VoteRequest is an up or down vote.
type VoteRequest struct {
	IsUpvote bool `json:"isUpvote"`
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []FieldError
}

// FieldError is one failed rule.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Param != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", f.Field, f.Rule, f.Param))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Rule))
		}
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// Validate checks a request payload. It returns *ValidationError when a rule fails.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// Slugify derives a box slug from a display name.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
