package main

import (
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/bertrandmartel/hydraconsent/cp/application"
	"github.com/bertrandmartel/hydraconsent/cp/claims"
	"github.com/bertrandmartel/hydraconsent/cp/config"
	"github.com/bertrandmartel/hydraconsent/cp/handlers/auth"
	"github.com/bertrandmartel/hydraconsent/cp/handlers/consent"
	"github.com/bertrandmartel/hydraconsent/cp/middleware"
	"github.com/bertrandmartel/hydraconsent/cp/session"
	"github.com/labstack/echo/v4"
	mw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/go-playground/validator.v9"
)

type Template struct {
	templates *template.Template
}

func (t *Template) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

func newServer(cfg *config.Config, app application.ConsentApp, registry *prometheus.Registry) (*echo.Echo, error) {
	templates, err := template.ParseGlob(cfg.Templates)
	if err != nil {
		return nil, err
	}
	e := echo.New()
	e.HideBanner = true
	e.Renderer = &Template{templates: templates}
	UseCommonMiddleware(e)
	routes(e, cfg, app, registry)
	return e, nil
}

func routes(e *echo.Echo, cfg *config.Config, consentApp application.ConsentApp, registry *prometheus.Registry) {
	e.Use(bindApp(&consentApp))

	e.GET("/consent", func(c echo.Context) error {
		app := *c.Get("application").(*application.ConsentApp)
		s := c.Get("session").(*session.Session)
		request := new(consent.Request)
		if err := c.Bind(request); err != nil {
			return c.JSON(http.StatusBadRequest, SendError("invalid_request", "incorrect parameters"))
		}
		return consent.Initiate(c, request, app, s)
	}, MWSession)
	e.POST("/consent", func(c echo.Context) error {
		app := *c.Get("application").(*application.ConsentApp)
		s := c.Get("session").(*session.Session)
		request, err := bindDecision(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, SendError("invalid_request", "incorrect parameters"))
		}
		return consent.Decide(c, request, app, s)
	}, MWSession)

	e.GET("/login", func(c echo.Context) error {
		app := *c.Get("application").(*application.ConsentApp)
		s := c.Get("session").(*session.Session)
		request := new(auth.LoginPage)
		if err := c.Bind(request); err != nil {
			return c.JSON(http.StatusBadRequest, SendError("invalid_request", "incorrect parameters"))
		}
		return auth.RenderLogin(c, request, app, s)
	}, MWSession)
	e.POST("/login", func(c echo.Context) error {
		app := *c.Get("application").(*application.ConsentApp)
		s := c.Get("session").(*session.Session)
		request := new(auth.LoginRequest)
		if err := c.Bind(request); err != nil {
			return c.JSON(http.StatusBadRequest, SendError("invalid_request", "incorrect parameters"))
		}
		if err := c.Validate(request); err != nil {
			return app.RedirectLogin(c, request.Reference, "Email and password are required")
		}
		return auth.Login(c, request, app, s)
	}, MWSession)
	e.GET("/logout", func(c echo.Context) error {
		app := *c.Get("application").(*application.ConsentApp)
		return auth.Logout(c, app)
	})

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "consent provider "+cfg.Version)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	e.Static("/static", cfg.Assets)
}

type decisionBody struct {
	Reference     string           `json:"reference"`
	GrantedScopes claims.ScopeList `json:"grantedScopes"`
}

// bindDecision reads the granted scopes from a form, where the field may repeat, or from a
// JSON body holding a string or an array.
func bindDecision(c echo.Context) (*consent.DecisionRequest, error) {
	request := &consent.DecisionRequest{
		Reference: c.QueryParam("reference"),
	}
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		body := new(decisionBody)
		if err := c.Bind(body); err != nil {
			return nil, err
		}
		if request.Reference == "" {
			request.Reference = body.Reference
		}
		request.GrantedScopes = body.GrantedScopes.Input
		return request, nil
	}
	params, err := c.FormParams()
	if err != nil {
		return nil, err
	}
	if request.Reference == "" {
		request.Reference = params.Get("reference")
	}
	if values := params["grantedScopes"]; len(values) > 0 {
		request.GrantedScopes = claims.FromValues(values)
	}
	return request, nil
}

func bindApp(app *application.ConsentApp) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("application", app)
			return next(c)
		}
	}
}

func MWSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		app := c.Get("application").(*application.ConsentApp)
		middleware.UseSession(c, *app)
		return next(c)
	}
}

type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func SendError(errorMessage string, errorDescription string) *ErrorResponse {
	return &ErrorResponse{
		Error:            errorMessage,
		ErrorDescription: errorDescription,
	}
}

//middleware for validation
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func UseCommonMiddleware(e *echo.Echo) {
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mw.LoggerWithConfig(mw.LoggerConfig{
		Format: "${remote_ip} - - ${time_rfc3339_nano} \"${method} ${uri} ${protocol}\" ${status} ${bytes_out} \"${referer}\" \"${user_agent}\"\n",
		Output: logrus.StandardLogger().Writer(),
	}))
	e.Use(mw.Recover())
}
