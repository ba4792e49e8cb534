package user

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/databayt/hogwarts-sub013/core"
	appfs "github.com/databayt/hogwarts-sub013/fs"
)

const (
	allRolesTag         = "allroles"
	usernameOrEmailTag  = "username_or_email"
	pwdMinLen           = 8
	pwdMaxSimilarity    = .7
	commonPasswordsFile = "assets/common-passwords.txt"
)

// passwordRule is one check of the password policy; rules run in order and the first failure is reported.
type passwordRule struct {
	tag   string
	text  string
	check func(pwd string, attrs []string) bool
}

var (
	specialRegex = regexp.MustCompile("[^A-Za-z0-9]")

	// sorted, lowercase
	commonPasswords []string

	passwordPolicy = []passwordRule{
		{
			tag:  "pwdminlen",
			text: fmt.Sprintf("password must contain at least %d characters", pwdMinLen),
			check: func(pwd string, _ []string) bool {
				return utf8.RuneCountInString(pwd) >= pwdMinLen
			},
		},
		{
			tag:  "pwdnospace",
			text: "password must not contain whitespace",
			check: func(pwd string, _ []string) bool {
				return strings.IndexFunc(pwd, unicode.IsSpace) < 0
			},
		},
		{
			tag:  "pwdnotallnum",
			text: "password cannot be entirely numeric",
			check: func(pwd string, _ []string) bool {
				return strings.IndexFunc(pwd, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0
			},
		},
		{
			tag:   "pwdcplx",
			text:  "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
			check: isComplex,
		},
		{
			tag:  "pwdtoosim",
			text: "password cannot be similar to user attributes",
			check: func(pwd string, attrs []string) bool {
				for _, attr := range attrs {
					if similarity(pwd, attr) >= pwdMaxSimilarity {
						return false
					}
				}
				return true
			},
		},
		{
			tag:  "pwdnocommon",
			text: "password is too common",
			check: func(pwd string, _ []string) bool {
				lpwd := strings.ToLower(pwd)
				idx := sort.SearchStrings(commonPasswords, lpwd)
				return idx == len(commonPasswords) || commonPasswords[idx] != lpwd
			},
		},
	}
)

func init() {
	commonPasswords = loadCommonPasswords()

	v, t := core.Validate, core.Translator
	_ = v.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(v, t, allRolesTag, "invalid roles")

	v.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{})
	core.RegisterCustomTranslation(v, t, usernameOrEmailTag, "one of username or email is required")
	for _, rule := range passwordPolicy {
		core.RegisterCustomTranslation(v, t, rule.tag, rule.text)
	}
}

func loadCommonPasswords() []string {
	pwds := make([]string, 0, 1024)
	file, err := appfs.FS.Open(commonPasswordsFile)
	if err != nil {
		return pwds
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	sort.Strings(pwds)
	return pwds
}

// allRolesValidation checks that every role is one of AllRoles.
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !core.ContainsString(AllRoles, role) {
			return false
		}
	}
	return true
}

func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		if usr.Username == "" && usr.Email == "" {
			sl.ReportError(usr.Username, "username", "Username", usernameOrEmailTag, "")
			sl.ReportError(usr.Email, "email", "Email", usernameOrEmailTag, "")
		}
		validatePassword(usr.Password, usr.Name, usr.Username, usr.Email, sl)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, usr.Name, usr.Username, usr.Email, sl)
		}
	}
}

// validatePassword reports the first password policy rule `pwd` breaks.
func validatePassword(pwd, name, uname, email string, sl validator.StructLevel) {
	attrs := []string{name, uname, email}
	for _, rule := range passwordPolicy {
		if !rule.check(pwd, attrs) {
			sl.ReportError(pwd, "password", "Password", rule.tag, "")
			return
		}
	}
}

func isComplex(pwd string, _ []string) bool {
	var upper, lower, digit bool
	for _, r := range pwd {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit && specialRegex.MatchString(pwd)
}

// similarity is difflib's quick ratio between the characters of `pwd` and `attr`.
func similarity(pwd, attr string) float64 {
	if attr == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(attr, "")).QuickRatio()
}
