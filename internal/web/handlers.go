package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/conorfennell/vocabsync/internal/kv"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type uploadRequest struct {
	Data json.RawMessage `json:"data"`
}

type itemRequest struct {
	Key   string          `json:"key" binding:"required"`
	Value json.RawMessage `json:"value"`
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// internalError logs err against the request and answers 500 with msg.
func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, "requestID", c.GetString(ctxRequestID), "error", err)
	abortWithError(c, http.StatusInternalServerError, msg)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	switch f := verrs[0]; {
	case f.Field() == "Password" && f.Tag() == "min":
		return "password must be at least 6 characters"
	case f.Field() == "Email" && f.Tag() == "email":
		return "email address is not valid"
	default:
		return "username, email and password are required"
	}
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, validationMessage(err))
			return
		}
		ctx := c.Request.Context()
		db := s.db()

		existing, err := db.FindUserByEmail(ctx, req.Email)
		if err != nil {
			s.internalError(c, "registration failed", err)
			return
		}
		if existing != nil {
			abortWithError(c, http.StatusBadRequest, "email is already registered")
			return
		}
		existing, err = db.FindUserByUsername(ctx, req.Username)
		if err != nil {
			s.internalError(c, "registration failed", err)
			return
		}
		if existing != nil {
			abortWithError(c, http.StatusBadRequest, "username is already taken")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.internalError(c, "registration failed", err)
			return
		}
		id, err := db.CreateUser(ctx, req.Username, req.Email, string(hash))
		if err != nil {
			s.internalError(c, "registration failed", err)
			return
		}

		tok, err := s.tokens.Issue(id, req.Username, req.Email)
		if err != nil {
			s.internalError(c, "registration failed", err)
			return
		}
		s.logger.Info("user registered", "userID", id, "username", req.Username)
		c.JSON(http.StatusCreated, gin.H{
			"message": "registration successful",
			"token":   tok,
			"user":    userResponse{ID: id, Username: req.Username, Email: req.Email},
		})
	}
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "email and password are required")
			return
		}

		user, err := s.db().FindUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			s.internalError(c, "login failed", err)
			return
		}
		if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
			abortWithError(c, http.StatusUnauthorized, "incorrect email or password")
			return
		}

		tok, err := s.tokens.Issue(user.ID, user.Username, user.Email)
		if err != nil {
			s.internalError(c, "login failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "login successful",
			"token":   tok,
			"user":    userResponse{ID: user.ID, Username: user.Username, Email: user.Email},
		})
	}
}

func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.db().FindUserByID(c.Request.Context(), c.GetInt64(ctxUserID))
		if err != nil {
			s.internalError(c, "failed to load user", err)
			return
		}
		if user == nil {
			abortWithError(c, http.StatusNotFound, "user not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// handleUpload stores every entry of data. Values are kept as their compact JSON text.
func (s *Server) handleUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req uploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "data must be a JSON object")
			return
		}
		var data map[string]json.RawMessage
		if err := json.Unmarshal(req.Data, &data); err != nil || data == nil {
			abortWithError(c, http.StatusBadRequest, "data must be a JSON object")
			return
		}

		entries := make(map[string]string, len(data))
		for key, value := range data {
			entries[key] = compactJSON(value)
		}
		if err := s.db().UpsertMany(c.Request.Context(), c.GetInt64(ctxUserID), entries); err != nil {
			s.internalError(c, "sync upload failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "data synced", "count": len(entries)})
	}
}

// handleDownload returns every stored entry. Values that are not valid JSON come back as strings.
func (s *Server) handleDownload() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := s.db().GetAll(c.Request.Context(), c.GetInt64(ctxUserID))
		if err != nil {
			s.internalError(c, "failed to load data", err)
			return
		}
		data := make(map[string]json.RawMessage, len(entries))
		for _, e := range entries {
			data[e.Key] = kv.EncodeValue(e.Value)
		}
		c.JSON(http.StatusOK, gin.H{"data": data, "count": len(entries)})
	}
}

func (s *Server) handlePutItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req itemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "key is required")
			return
		}
		err := s.db().Upsert(c.Request.Context(), c.GetInt64(ctxUserID), req.Key, compactJSON(req.Value))
		if err != nil {
			s.internalError(c, "item sync failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "item synced"})
	}
}

func (s *Server) handleDeleteItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.db().DeleteByKey(c.Request.Context(), c.GetInt64(ctxUserID), c.Param("key")); err != nil {
			s.internalError(c, "item delete failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "item deleted"})
	}
}

func (s *Server) handleDeleteAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.db().DeleteAll(c.Request.Context(), c.GetInt64(ctxUserID)); err != nil {
			s.internalError(c, "failed to clear data", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "all data cleared"})
	}
}

// compactJSON returns the compact text of a JSON value; an absent value is stored as null.
func compactJSON(value json.RawMessage) string {
	if len(bytes.TrimSpace(value)) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}
