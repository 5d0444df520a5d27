package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"taskhub/internal/domain/errors"
	"taskhub/internal/realtime"
	"taskhub/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type TaskAPI struct {
	httpSrv  *http.Server
	auth     *service.AuthService
	tasks    *service.TaskService
	hub      *realtime.Hub
	cfg      *Config
	logger   zerolog.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewTaskAPI(
	authSvc *service.AuthService,
	taskSvc *service.TaskService,
	hub *realtime.Hub,
	cfg *Config,
	logger zerolog.Logger,
) *TaskAPI {
	if authSvc == nil || taskSvc == nil || hub == nil || cfg == nil {
		return nil
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "token"
	}

	api := &TaskAPI{
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		auth:     authSvc,
		tasks:    taskSvc,
		hub:      hub,
		cfg:      cfg,
		logger:   logger.With().Str("component", "http").Logger(),
		validate: newValidator(),
	}
	api.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     api.checkOrigin,
	}

	api.configRoutes()
	return api
}

func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternalServer
	}
	if api.httpSrv.Addr == "" {
		api.httpSrv.Addr = ":8080"
	}

	err := api.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown disconnects realtime clients first; http.Server.Shutdown does not
// wait for hijacked connections.
func (api *TaskAPI) Shutdown(ctx context.Context) error {
	api.hub.Close()
	return api.httpSrv.Shutdown(ctx)
}

func (api *TaskAPI) Handler() http.Handler {
	return api.httpSrv.Handler
}

func (api *TaskAPI) configRoutes() {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), RequestLogger(api.logger))
	if mw := api.corsMiddleware(); mw != nil {
		router.Use(mw)
	}

	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "env": api.cfg.Env})
	})

	router.GET("/ws", api.requireAuth(true), api.serveWS)

	rest := router.Group("", GzipRequestDecompress(), GzipResponseCompress())

	authGroup := rest.Group("/auth")
	{
		authGroup.POST("/register", api.register)
		authGroup.POST("/login", api.login)
		authGroup.POST("/logout", api.logout)
		authGroup.GET("/me", api.requireAuth(false), api.me)
		authGroup.PUT("/profile", api.requireAuth(false), api.updateProfile)
	}

	tasks := rest.Group("/tasks", api.requireAuth(false))
	{
		tasks.GET("", api.listTasks)
		tasks.POST("", api.createTask)
		tasks.GET("/:taskID", api.getTask)
		tasks.PUT("/:taskID", api.updateTask)
		tasks.DELETE("/:taskID", api.deleteTask)
	}

	users := rest.Group("/users", api.requireAuth(false))
	{
		users.GET("", api.listUsers)
	}

	api.httpSrv.Handler = router
}

func (api *TaskAPI) corsMiddleware() gin.HandlerFunc {
	if len(api.cfg.CORSOrigins) == 0 {
		return nil
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Encoding", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if api.allowAnyOrigin() {
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = api.cfg.CORSOrigins
	}
	return cors.New(corsCfg)
}

func (api *TaskAPI) allowAnyOrigin() bool {
	for _, o := range api.cfg.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// checkOrigin accepts the configured CORS origins and same-host requests.
func (api *TaskAPI) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || api.allowAnyOrigin() {
		return true
	}
	for _, o := range api.cfg.CORSOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.EqualFold(host, r.Host)
}
