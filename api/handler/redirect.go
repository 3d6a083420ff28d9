package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/metascraper/models"
	"github.com/use-agent/metascraper/provider"
)

// Redirect returns a handler for GET /r/:provider/:id, a 302 to the
// provider's canonical detail URL. No scraping happens here; the URL is
// a pure function of the id.
func Redirect(reg *provider.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := reg.Get(c.Param("provider"))
		if !ok {
			respondError(c, models.NotFound("unknown provider: "+c.Param("provider")))
			return
		}
		id, ok := p.TryParseID(c.Param("id"))
		if !ok {
			respondError(c, models.NotFound("input carries no recognizable id"))
			return
		}
		c.Redirect(http.StatusFound, p.BuildDetailURL(id))
	}
}
