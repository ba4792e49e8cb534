package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/databayt/hogwarts-sub013/core"
)

// Password reset tokens look like "<issue hour in base 36>-<signature>".
// The signature covers the user's school, ID, password hash and last login:
// a token stops working once the password changes or the user logs in again.

var (
	resetKeySalt = []byte("hogwarts/user/password-reset")

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes the ID of `usr` for reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

// MakeToken issues a password reset token for `usr`, valid for Conf.PasswordResetTimeoutDelta.
func MakeToken(usr User) string {
	return signedToken(usr, issueHour(core.NowFunc()))
}

func verifyToken(usr User, token string) error {
	hourPart, sig, ok := strings.Cut(token, "-")
	if !ok || sig == "" {
		return errInvalidToken
	}
	issued, err := strconv.ParseInt(hourPart, 36, 64)
	if err != nil || issued < 0 {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(signedToken(usr, issued)), []byte(token)) {
		return errInvalidToken
	}

	maxAge := int64(core.Conf.PasswordResetTimeoutDelta / time.Hour)
	if issueHour(core.NowFunc())-issued > maxAge {
		return errTokenExpired
	}
	return nil
}

func signedToken(usr User, issued int64) string {
	key := sha256.Sum256(append(append([]byte{}, resetKeySalt...), core.Conf.SecretKey...))
	mac := hmac.New(sha256.New, key[:])
	fmt.Fprintf(mac, "%s|%s|%x|%d|%d", usr.SchoolID, usr.ID, usr.PasswordHash, usr.LastLogin.Unix(), issued)
	return strconv.FormatInt(issued, 36) + "-" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func issueHour(t time.Time) int64 {
	return t.Unix() / int64(time.Hour/time.Second)
}
