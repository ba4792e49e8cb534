package echoapi

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
	"github.com/databayt/hogwarts-sub013/core/school"
	"github.com/databayt/hogwarts-sub013/core/user"
)

var (
	// appJWTConfig is the default JWT auth middleware config.
	appJWTConfig = middleware.JWTConfig{
		SigningKey:    []byte(core.Conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    "userToken",
		Claims:        new(Claims),
	}
	contextUserKey = "user"
)

var (
	portalAdmin   = user.RoleGroup(user.RoleAdmin)
	portalTeacher = user.RoleGroup(user.RoleTeacher)
)

// Claims represents the authorization claims transmitted via a JWT.
// SchoolID is the tenant every request of the session is scoped to; Portals are the
// role groups (admin, teacher, guardian, student) the frontend opens for the user.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	SchoolID     string   `json:"sid"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	Portals      []string `json:"portals"`
	Roles        []string `json:"roles,omitempty"`
}

func (c Claims) inPortal(portals ...string) bool {
	for _, p := range portals {
		if core.ContainsString(c.Portals, p) {
			return true
		}
	}
	return false
}

func (c Claims) hasAnyRole(roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if core.ContainsString(c.Roles, role) {
			return true
		}
	}
	return false
}

// GetUserClaims builds the claims of a new token for `usr`. Refreshed tokens keep the original
// issue time (origIat) so that sessions cannot be refreshed forever.
func GetUserClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	portals := make([]string, 0, 2)
	for _, role := range usr.Roles {
		if group := user.RoleGroup(role); !core.ContainsString(portals, group) {
			portals = append(portals, group)
		}
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    core.Conf.AppName,
			Subject:   usr.ID,
			Audience:  core.Conf.Server.Host,
			ExpiresAt: now.Add(core.Conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: oriat,
		SchoolID:     usr.SchoolID,
		Username:     usr.Username,
		Email:        usr.Email,
		Portals:      portals,
		Roles:        usr.Roles,
	}
}

func authenticate(ctx context.Context, uname, pwd string, users *user.Service, schools *school.Service) (*Claims, error) {
	usr, err := users.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errAuthenticationFailed
		}
		return nil, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return nil, errAuthenticationFailed
	}
	if !usr.IsActive {
		return nil, errAccountDeactivated
	}
	if err = checkSchool(ctx, usr, schools); err != nil {
		return nil, err
	}
	usr, err = users.SetLastLogin(ctx, usr)
	if err != nil {
		return nil, errors.Wrap(err, "setting lastLogin")
	}
	return GetUserClaims(usr), nil
}

func checkSchool(ctx context.Context, usr user.User, schools *school.Service) error {
	if err := schools.CheckAvailable(ctx, usr.SchoolID); err != nil {
		if errors.Is(err, school.ErrUnavailable) {
			return errSchoolUnavailable
		}
		return errors.Wrap(err, "checking school availability")
	}
	return nil
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(appJWTConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(appJWTConfig.SigningKey)
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(appJWTConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc *user.Service, clms ...Claims) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	var claims Claims
	var err error
	if len(clms) > 0 {
		claims = clms[0]
	} else {
		claims, err = getContextClaims(ctx)
		if err != nil {
			return user.User{}, errors.Wrap(err, "getting context claims")
		}
	}

	usr, err := svc.GetByID(ctx.Request().Context(), claims.SchoolID, claims.Subject)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// contextUser returns the user loaded by authMiddleware.
func contextUser(ctx echo.Context) user.User {
	usr, _ := ctx.Get(contextUserKey).(user.User)
	return usr
}

func refreshToken(ctx echo.Context, users *user.Service, schools *school.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting context claims")
	}

	usr, err := getContextUser(ctx, users, claims)
	if err != nil {
		return "", errors.Wrap(err, "getting context user")
	}

	// check if user and school are still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}
	if err = checkSchool(ctx.Request().Context(), usr, schools); err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(core.Conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	newClaims := GetUserClaims(usr, claims.OrigIssuedAt)
	token, err := GenerateToken(newClaims)
	return token, errors.Wrap(err, "generating token")
}
