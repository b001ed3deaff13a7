package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"Charla/middleware"
	"Charla/models"
	"Charla/pkg/store"
	tokenstore "Charla/pkg/token"
	utils "Charla/pkg/utills"
)

func userJSON(u *models.User) gin.H {
	return gin.H{"id": u.ID, "email": u.Email, "name": u.Name, "image": u.Image}
}

// Register handler
func Register(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Email           string `json:"email"`
			Name            string `json:"name"`
			Password        string `json:"password"`
			ConfirmPassword string `json:"confirm_password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}

		email := strings.TrimSpace(strings.ToLower(body.Email))
		name := strings.TrimSpace(body.Name)
		if email == "" || body.Password == "" || body.ConfirmPassword == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Email, password, and confirm password are required"})
			return
		}
		if !utils.ValidEmail(email) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid email address"})
			return
		}
		if body.Password != body.ConfirmPassword {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Passwords do not match"})
			return
		}
		// password validation: at least one letter and one number
		if len(body.Password) < 6 || !utils.HasLetter(body.Password) || !utils.HasNumber(body.Password) {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Password must be at least 6 characters with one letter and one number"})
			return
		}

		user := models.User{Email: email, Name: name}
		if err := user.SetPassword(body.Password); err != nil {
			d.internalError(c, err)
			return
		}
		if err := d.Store.CreateUser(c.Request.Context(), &user); err != nil {
			if errors.Is(err, store.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"msg": "Email already exists"})
				return
			}
			d.internalError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"msg": "User created", "user": userJSON(&user)})
	}
}

// Login handler
func Login(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		if strings.TrimSpace(body.Email) == "" || body.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "Email and password are required"})
			return
		}

		user, err := d.Store.FindUserByEmail(c.Request.Context(), body.Email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid credentials"})
				return
			}
			d.internalError(c, err)
			return
		}
		if !user.CheckPassword(body.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid credentials"})
			return
		}

		tokenStr, err := middleware.IssueToken(d.Config.JWTSecret, user.ID, d.Config.JWTLifetime)
		if err != nil {
			d.internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": tokenStr, "user": userJSON(user)})
	}
}

// Logout handler
func Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		exp, _ := c.Get(middleware.ContextExpKey)
		until, _ := exp.(time.Time)
		tokenstore.RevokeToken(c.GetString(middleware.ContextJTIKey), until)
		c.JSON(http.StatusOK, gin.H{"msg": "logged out"})
	}
}
