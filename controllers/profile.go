package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"Charla/middleware"
	"Charla/pkg/store"
	utils "Charla/pkg/utills"
)

// Profile serves GET and PUT /profile for the current user.
func Profile(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		user, err := d.Store.GetUser(ctx, middleware.CurrentUserID(c))
		if err != nil {
			d.storeError(c, err, "User not found")
			return
		}

		if c.Request.Method == http.MethodGet {
			c.JSON(http.StatusOK, userJSON(user))
			return
		}

		// PUT
		var body struct {
			Email    string  `json:"email"`
			Name     *string `json:"name"`
			Image    *string `json:"image"`
			Password string  `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}

		if email := strings.TrimSpace(strings.ToLower(body.Email)); email != "" {
			if !utils.ValidEmail(email) {
				c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid email address"})
				return
			}
			user.Email = email
		}
		if body.Name != nil {
			user.Name = strings.TrimSpace(*body.Name)
		}
		if body.Image != nil {
			user.Image = strings.TrimSpace(*body.Image)
		}
		if body.Password != "" {
			if len(body.Password) < 6 || !utils.HasLetter(body.Password) || !utils.HasNumber(body.Password) {
				c.JSON(http.StatusBadRequest, gin.H{"msg": "New password must be at least 6 characters with one letter and one number"})
				return
			}
			if err := user.SetPassword(body.Password); err != nil {
				d.internalError(c, err)
				return
			}
		}

		if err := d.Store.UpdateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"msg": "Email already exists"})
				return
			}
			d.internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "Profile updated successfully", "user": userJSON(user)})
	}
}
