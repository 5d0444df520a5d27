package server

import (
	"net/http"
	"time"

	"taskhub/internal/domain/errors"
	"taskhub/internal/domain/models"
	"taskhub/internal/service"

	"github.com/gin-gonic/gin"
)

func (api *TaskAPI) abortWithError(ctx *gin.Context, err error) {
	status, body := api.errorResponse(ctx, err)
	ctx.AbortWithStatusJSON(status, body)
}

func (api *TaskAPI) respondError(ctx *gin.Context, err error) {
	status, body := api.errorResponse(ctx, err)
	ctx.JSON(status, body)
}

func (api *TaskAPI) errorResponse(ctx *gin.Context, err error) (int, gin.H) {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, gin.H{"error": "Validation error", "details": verr.Fields}
	}

	var e *errors.Error
	if !errors.As(err, &e) || e.Kind == errors.KindInternal {
		api.logger.Error().Err(err).
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Msg("request failed")
		return http.StatusInternalServerError, gin.H{"error": errors.ErrInternalServer.Message}
	}

	switch e.Kind {
	case errors.KindValidation:
		return http.StatusBadRequest, gin.H{"error": e.Message}
	case errors.KindUnauthenticated:
		return http.StatusUnauthorized, gin.H{"error": e.Message}
	case errors.KindNotFound:
		return http.StatusNotFound, gin.H{"error": e.Message}
	case errors.KindConflict:
		return http.StatusConflict, gin.H{"error": e.Message}
	}
	return http.StatusInternalServerError, gin.H{"error": errors.ErrInternalServer.Message}
}

// bindJSON decodes and validates a request body, writing the error response
// itself when it returns false.
func (api *TaskAPI) bindJSON(ctx *gin.Context, req any) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		api.respondError(ctx, errors.ErrBadRequest)
		return false
	}
	if n, ok := req.(interface{ Normalize() }); ok {
		n.Normalize()
	}
	if err := api.validateRequest(req); err != nil {
		api.respondError(ctx, err)
		return false
	}
	return true
}

func (api *TaskAPI) setSessionCookie(ctx *gin.Context, token string, maxAge int) {
	if api.cfg.CookieSecure {
		ctx.SetSameSite(http.SameSiteNoneMode)
	} else {
		ctx.SetSameSite(http.SameSiteLaxMode)
	}
	ctx.SetCookie(api.cfg.CookieName, token, maxAge, "/", "", api.cfg.CookieSecure, true)
}

func (api *TaskAPI) writeSession(ctx *gin.Context, status int, session *service.Session) {
	api.setSessionCookie(ctx, session.Token, int(api.auth.TokenTTL()/time.Second))
	ctx.JSON(status, gin.H{"user": session.User.Public(), "token": session.Token})
}

func (api *TaskAPI) register(ctx *gin.Context) {
	var req models.RegisterRequest
	if !api.bindJSON(ctx, &req) {
		return
	}

	session, err := api.auth.Register(ctx.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	api.writeSession(ctx, http.StatusCreated, session)
}

func (api *TaskAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if !api.bindJSON(ctx, &req) {
		return
	}

	session, err := api.auth.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	api.writeSession(ctx, http.StatusOK, session)
}

func (api *TaskAPI) logout(ctx *gin.Context) {
	api.setSessionCookie(ctx, "", -1)
	ctx.Status(http.StatusNoContent)
}

func (api *TaskAPI) me(ctx *gin.Context) {
	user, err := api.auth.CurrentUser(ctx.Request.Context(), ctx.GetString(tokenKey))
	if err != nil {
		if errors.KindOf(err) == errors.KindNotFound {
			err = errors.ErrUnauthorized
		}
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user.Public()})
}

func (api *TaskAPI) updateProfile(ctx *gin.Context) {
	var req models.UpdateProfileRequest
	if !api.bindJSON(ctx, &req) {
		return
	}

	user, err := api.auth.UpdateProfile(ctx.Request.Context(), ctx.GetString(userIDKey), req.Name)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user.Public()})
}

func (api *TaskAPI) listUsers(ctx *gin.Context) {
	users, err := api.auth.ListUsers(ctx.Request.Context())
	if err != nil {
		api.respondError(ctx, err)
		return
	}

	out := make([]models.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	ctx.JSON(http.StatusOK, gin.H{"users": out})
}

func (api *TaskAPI) listTasks(ctx *gin.Context) {
	var q models.ListTasksQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		api.respondError(ctx, errors.ErrBadRequest)
		return
	}
	if err := api.validateRequest(&q); err != nil {
		api.respondError(ctx, err)
		return
	}

	tasks, err := api.tasks.ListTasks(ctx.Request.Context(), service.TaskQuery{
		Status:       models.TaskStatus(q.Status),
		Priority:     models.TaskPriority(q.Priority),
		CreatorID:    q.CreatorID,
		AssignedToID: q.AssignedToID,
		OverdueOnly:  q.OverdueOnly == "true",
	})
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	ctx.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (api *TaskAPI) createTask(ctx *gin.Context) {
	var req models.CreateTaskRequest
	if !api.bindJSON(ctx, &req) {
		return
	}

	dueDate, err := parseISODate(req.DueDate)
	if err != nil {
		api.respondError(ctx, errors.NewValidationError("dueDate", "must be an ISO-8601 date-time"))
		return
	}

	task, err := api.tasks.CreateTask(ctx.Request.Context(), service.CreateTaskInput{
		Title:        req.Title,
		Description:  req.Description,
		DueDate:      dueDate,
		Priority:     models.TaskPriority(req.Priority),
		Status:       models.TaskStatus(req.Status),
		AssignedToID: req.AssignedToID,
	}, ctx.GetString(userIDKey))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"task": task})
}

func (api *TaskAPI) getTask(ctx *gin.Context) {
	task, err := api.tasks.GetTask(ctx.Request.Context(), ctx.Param("taskID"))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	var req models.UpdateTaskRequest
	if !api.bindJSON(ctx, &req) {
		return
	}

	patch := models.TaskPatch{
		Title:        req.Title,
		Description:  req.Description,
		AssignedToID: req.AssignedToID,
	}
	if req.DueDate != nil {
		dueDate, err := parseISODate(*req.DueDate)
		if err != nil {
			api.respondError(ctx, errors.NewValidationError("dueDate", "must be an ISO-8601 date-time"))
			return
		}
		patch.DueDate = &dueDate
	}
	if req.Priority != nil {
		p := models.TaskPriority(*req.Priority)
		patch.Priority = &p
	}
	if req.Status != nil {
		s := models.TaskStatus(*req.Status)
		patch.Status = &s
	}

	task, err := api.tasks.UpdateTask(ctx.Request.Context(), ctx.Param("taskID"), patch)
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	deleted, err := api.tasks.DeleteTask(ctx.Request.Context(), ctx.Param("taskID"))
	if err != nil {
		api.respondError(ctx, err)
		return
	}
	if !deleted {
		api.respondError(ctx, errors.ErrTaskNotFound)
		return
	}
	ctx.Status(http.StatusNoContent)
}
