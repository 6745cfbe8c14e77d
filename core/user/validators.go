package user

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/feeded/core"
)

var (
	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"
)

func init() {
	core.Validate.RegisterStructValidation(userStructValidation, NewUser{}, SetUserPassword{})
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdAttrSimTag, pwdAttrSimText)
}

// userStructValidation does struct level validation on NewUser and SetUserPassword structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validatePassword(usr.Password, usr.Name, usr.Email, sl)
	case SetUserPassword:
		validatePassword(usr.Password, usr.name, usr.email, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - no user attrs similarity
func validatePassword(pwd, name, email string, sl validator.StructLevel) {
	if pwd == "" {
		return // reported by `required`
	}
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	if len([]rune(pwd)) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	var digitCount int
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == len([]rune(pwd)) {
		reportErr(pwdNotAllNumTag)
		return
	}

	if similar(pwd, name) || similar(pwd, email) || similar(pwd, strings.SplitN(email, "@", 2)[0]) {
		reportErr(pwdAttrSimTag)
	}
}

func similar(pwd, attr string) bool {
	if attr == "" {
		return false
	}
	pwd, attr = strings.ToLower(pwd), strings.ToLower(attr)
	return difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(attr, "")).QuickRatio() >= pwdMaxSim
}
