package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licensor/internal/authorization"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
	"go.uber.org/zap"
)

const (
	contextKeyAdminName = "admin_name"
	contextKeyAdminRole = "admin_role"
)

// AdminAuthRequired resolves the bearer token to a configured admin credential.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		cred, ok := s.matchAdminCredential(token)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actorType := obscontext.ActorTypeAdmin
		if cred.role == authorization.RoleSystem {
			actorType = obscontext.ActorTypeSystem
		}
		ctx := obscontext.WithActor(c.Request.Context(), actorType, cred.name)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextKeyAdminName, cred.name)
		c.Set(contextKeyAdminRole, cred.role)
		c.Next()
	}
}

// matchAdminCredential compares every credential so timing does not reveal
// which entry matched.
func (s *Server) matchAdminCredential(token string) (adminCredential, bool) {
	sum := sha256.Sum256([]byte(token))
	var (
		found adminCredential
		ok    bool
	)
	for _, cred := range s.adminCredentials {
		if subtle.ConstantTimeCompare(sum[:], cred.hash[:]) == 1 && !ok {
			found = cred
			ok = true
		}
	}
	return found, ok
}

func (s *Server) authorizeAdmin(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}

		name := c.GetString(contextKeyAdminName)
		role := c.GetString(contextKeyAdminRole)
		if name == "" || role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		err := s.authzSvc.Authorize(c.Request.Context(), "admin:"+name, role, object, action)
		if err != nil {
			if !errors.Is(err, authorization.ErrForbidden) {
				s.log.Warn("admin authorization rejected",
					zap.String("role", role),
					zap.String("object", object),
					zap.Error(err),
				)
			}
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
