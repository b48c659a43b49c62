// Package httpd holds the routing application mounted on the dashboard
// endpoint: monitoring and management views peers and operators query.
package httpd

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/loykin/gridnode/internal/logbuf"
	"github.com/loykin/gridnode/internal/metrics"
	"github.com/loykin/gridnode/internal/version"
)

// Node is the view of the owning node the routes need.
type Node interface {
	NodeType() string
	Status() string
	ListenAddress() string
	Logs(n int) []logbuf.Entry
	ServicePorts() map[string]int
	Versions(packages []string) version.Report
}

// Router provides the dashboard HTTP handlers for one node.
// Endpoints:
//
//	GET {basePath}/health        liveness probe
//	GET {basePath}/info          node type, status, listen address
//	GET {basePath}/logs          query: n=... (most recent first when set)
//	GET {basePath}/service-ports service key -> bound port
//	GET {basePath}/versions      query: package=... (repeatable)
//	GET {basePath}/metrics       Prometheus exposition
type Router struct {
	node     Node
	basePath string
}

// NewRouter constructs a Router. basePath may be empty or start with '/';
// no trailing slash.
func NewRouter(node Node, basePath string) *Router {
	return &Router{node: node, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/health", r.handleHealth)
	group.GET("/info", r.handleInfo)
	group.GET("/logs", r.handleLogs)
	group.GET("/service-ports", r.handleServicePorts)
	group.GET("/versions", r.handleVersions)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": r.node.Status()})
}

func (r *Router) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"type":    r.node.NodeType(),
		"status":  r.node.Status(),
		"address": r.node.ListenAddress(),
	})
}

func (r *Router) handleLogs(c *gin.Context) {
	n := 0
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "n must be a non-negative integer"})
			return
		}
		n = v
	}
	c.JSON(http.StatusOK, r.node.Logs(n))
}

func (r *Router) handleServicePorts(c *gin.Context) {
	c.JSON(http.StatusOK, r.node.ServicePorts())
}

func (r *Router) handleVersions(c *gin.Context) {
	c.JSON(http.StatusOK, r.node.Versions(c.QueryArray("package")))
}

func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
