package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/service"
)

type loginForm struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// login accepts a JSON body or an urlencoded form.
func (s *Server) login(c *gin.Context) {
	var in loginForm
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if !bind(c, &in) {
			return
		}
	} else {
		in.Username = c.PostForm("username")
		in.Password = c.PostForm("password")
	}

	res, err := s.svc.Login(c.Request.Context(), in.Username, in.Password, c.ClientIP())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) updateMe(c *gin.Context) {
	var in service.ProfileInput
	if !bind(c, &in) {
		return
	}
	u, err := s.svc.UpdateProfile(c.Request.Context(), currentUser(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.svc.ListUsers(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) createUser(c *gin.Context) {
	var in service.UserInput
	if !bind(c, &in) {
		return
	}
	u, err := s.svc.CreateUser(c.Request.Context(), currentUser(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (s *Server) updateUser(c *gin.Context) {
	var in service.UserPatch
	if !bind(c, &in) {
		return
	}
	u, err := s.svc.UpdateUser(c.Request.Context(), currentUser(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) deleteUser(c *gin.Context) {
	if err := s.svc.DeleteUser(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) departments(c *gin.Context) {
	depts, err := s.svc.Departments(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	if depts == nil {
		depts = []service.DepartmentView{}
	}
	c.JSON(http.StatusOK, depts)
}

func (s *Server) config(c *gin.Context) {
	cfg, err := s.svc.Config(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) replaceDepartments(c *gin.Context) {
	var in []model.Department
	if !bind(c, &in) {
		return
	}
	depts, err := s.svc.ReplaceDepartments(c.Request.Context(), currentUser(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, depts)
}

func (s *Server) replaceRequestOptions(c *gin.Context) {
	var in model.RequestOptions
	if !bind(c, &in) {
		return
	}
	opts, err := s.svc.ReplaceRequestOptions(c.Request.Context(), currentUser(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}
