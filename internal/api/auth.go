package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victornm/mockinterview/internal/auth"
	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
	"github.com/victornm/mockinterview/internal/guard"
	"github.com/victornm/mockinterview/internal/telemetry"
)

const identityKey = "identity"

type (
	RegisterRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	UserView struct {
		Email string      `json:"email"`
		Role  domain.Role `json:"role"`
	}

	RegisterResponse struct {
		Message string   `json:"message"`
		User    UserView `json:"user"`
	}

	LoginResponse struct {
		Message string   `json:"message"`
		Token   string   `json:"token"`
		User    UserView `json:"user"`
	}

	// GuardError is the body of a request turned away by the route guard.
	GuardError struct {
		Code     errors.Code `json:"code"`
		Message  string      `json:"message"`
		Redirect string      `json:"redirect"`
	}
)

func (a *API) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errBadRequest(err))
		return
	}

	id, err := a.auth.Register(c, auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	telemetry.AuthAttempts.WithLabelValues("register", telemetry.Result(err)).Inc()
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		User:    UserView{Email: id.Email, Role: id.Role},
	})
}

func (a *API) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errBadRequest(err))
		return
	}

	resp, err := a.auth.Login(c, auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	telemetry.AuthAttempts.WithLabelValues("login", telemetry.Result(err)).Inc()
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   resp.Token,
		User:    UserView{Email: resp.Identity.Email, Role: resp.Identity.Role},
	})
}

// authenticate resolves the bearer token, if any, into an identity. It never
// rejects a request by itself.
func (a *API) authenticate(c *gin.Context) {
	if tok := bearerToken(c); tok != "" {
		if id, err := a.auth.Verify(tok); err == nil {
			c.Set(identityKey, id)
		}
	}
	c.Next()
}

func (a *API) require(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := guard.Evaluate(identity(c), role)
		if d.Allowed {
			c.Next()
			return
		}

		e := errors.New(errors.CodeUnauthenticated, errors.WithMessage("login required"))
		if d.Reason == guard.ReasonWrongRole {
			e = errors.New(errors.CodePermissionDenied, errors.WithMessagef("%s access only", role))
		}

		c.AbortWithStatusJSON(e.HTTPStatusCode(), GuardError{
			Code:     e.Code,
			Message:  e.Message,
			Redirect: d.Redirect,
		})
	}
}

func identity(c *gin.Context) *domain.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*domain.Identity)
	return id
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for websocket handshakes.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return c.Query("token")
}
