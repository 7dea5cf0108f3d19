package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the transaction started by nrgin with the request
// and caller ids and reports errors handlers attached to the context.
// Register it after nrgin.Middleware.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}

		if id := GetRequestID(c); id != "" {
			txn.AddAttribute("request_id", id)
		}
		if id := UserID(c); id != "" {
			txn.AddAttribute("user_id", id)
		}
		for _, e := range c.Errors {
			txn.NoticeError(e.Err)
		}
	}
}
