package school

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/databayt/hogwarts-sub013/core"
)

var (
	slugTag   = "slug"
	slugText  = "{0} may only contain lowercase letters, digits and hyphens"
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

func init() {
	_ = core.Validate.RegisterValidation(slugTag, slugValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, slugTag, slugText)
}

func slugValidation(fl validator.FieldLevel) bool {
	return slugRegex.MatchString(fl.Field().String())
}
