package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/baiirun/mesa/internal/auth"
	"github.com/baiirun/mesa/internal/logging"
	"github.com/baiirun/mesa/internal/model"
)

const (
	requestIDHeader = "X-Request-Id"
	userKey         = "user"
	entryKey        = "log"
)

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		entry := s.log.WithFields(logrus.Fields{
			"request-id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
		})
		c.Set(entryKey, entry)
		c.Request = c.Request.WithContext(logging.WithEntry(c.Request.Context(), entry))

		c.Next()

		fields := logrus.Fields{
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"ip":       c.ClientIP(),
		}
		if u := currentUser(c); u != nil {
			fields["user"] = u.Username
		}
		entry = entry.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Info("request rejected")
		default:
			entry.Debug("request completed")
		}
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, err any) {
		logEntry(c).WithField("panic", fmt.Sprint(err)).Error("panic while serving request")
		detail(c, http.StatusInternalServerError, "internal server error")
	})
}

// observe records one metrics sample per routed request.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// authenticate requires a valid bearer token and stores the user.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		user, err := s.svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			fail(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}

func logEntry(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(entryKey); ok {
		if e, ok := v.(*logrus.Entry); ok {
			return e
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// loginLimiter throttles POST /api/auth/login per client address. A redis
// store that cannot be reached falls back to process memory.
func (s *Server) loginLimiter() (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(s.opts.LoginRate)
	if err != nil {
		return nil, fmt.Errorf("invalid login rate %q: %w", s.opts.LoginRate, err)
	}

	var store limiter.Store
	switch s.opts.RateLimitStorage {
	case "redis":
		store, err = newRedisStore(s.opts.RedisURL)
		if err != nil {
			s.log.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
			store = memory.NewStore()
		}
	default:
		store = memory.NewStore()
	}

	return mgin.NewMiddleware(limiter.New(store, rate),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			detail(c, http.StatusTooManyRequests, "Too many login attempts. Try again later.")
		}),
	), nil
}

func newRedisStore(url string) (limiter.Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{
		Prefix: "mesa_login",
	})
}
