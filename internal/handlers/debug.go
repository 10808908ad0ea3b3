package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug/admin-only endpoints. The backfill route
// repairs the derived membership index after schema migrations; it is not part
// of steady-state request handling.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, conversationRepo repositories.ConversationRepository, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), auditUserID(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/admin/backfill-memberships", func(c *gin.Context) {
		added, err := conversationRepo.BackfillMembershipIndex(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "backfill failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows_added": added})
	})
}
