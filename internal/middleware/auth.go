package middleware

import (
	"net/http"
	"strings"

	"github.com/carebridge/carebridge-api/internal/utils"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const identityKey = "identity"

// Identity is the authenticated caller resolved from the bearer token.
type Identity struct {
	UserID     primitive.ObjectID
	Role       string
	HospitalID *primitive.ObjectID
}

func (i Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// InHospital reports whether the caller is affiliated with hospital.
func (i Identity) InHospital(hospital primitive.ObjectID) bool {
	return i.HospitalID != nil && *i.HospitalID == hospital
}

// Auth validates the bearer token and stores the caller in the context.
func Auth(tokens *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization header required"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authorization header must use the Bearer scheme"})
			return
		}

		id, err := IdentityFromToken(tokens, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}

		c.Set("userID", id.UserID.Hex())
		c.Set("userRole", id.Role)
		if id.HospitalID != nil {
			c.Set("hospitalID", id.HospitalID.Hex())
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFromToken validates a raw token outside of the header flow, as the
// WebSocket upgrade does with its query parameter.
func IdentityFromToken(tokens *utils.TokenManager, token string) (Identity, error) {
	claims, err := tokens.Validate(token)
	if err != nil {
		return Identity{}, err
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return Identity{}, utils.ErrInvalidToken
	}
	id := Identity{UserID: userID, Role: claims.Role}
	if claims.HospitalID != "" {
		hid, err := primitive.ObjectIDFromHex(claims.HospitalID)
		if err != nil {
			return Identity{}, utils.ErrInvalidToken
		}
		id.HospitalID = &hid
	}
	return id, nil
}

// RequireRoles rejects callers whose role is not listed.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "User not authenticated"})
			return
		}
		if !id.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "You do not have permission to perform this action"})
			return
		}
		c.Next()
	}
}

func CurrentIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
