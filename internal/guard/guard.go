// Package guard decides whether an identity may enter a protected view.
package guard

import (
	"strings"

	"github.com/victornm/mockinterview/internal/domain"
)

// LoginPath is where rejected visitors are sent.
const LoginPath = "/login"

type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonWrongRole       Reason = "wrong_role"
)

type Decision struct {
	Allowed  bool
	Redirect string
	Reason   Reason
}

// Evaluate admits id when it is present and, if required is set, holds that
// role. Roles are compared ignoring case.
func Evaluate(id *domain.Identity, required domain.Role) Decision {
	if id == nil {
		return Decision{Redirect: LoginPath, Reason: ReasonUnauthenticated}
	}

	if required != "" && !strings.EqualFold(string(id.Role), string(required)) {
		return Decision{Redirect: LoginPath, Reason: ReasonWrongRole}
	}

	return Decision{Allowed: true}
}
