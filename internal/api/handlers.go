package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chain_stats/internal/domain"
	"chain_stats/internal/logging"
	"chain_stats/internal/store"
)

// GET /api/v1/stats?watermark=100&watermark=1000
func (s *Server) handleSnapshot(c *gin.Context) {
	raw := c.QueryArray("watermark")
	watermarks := make([]int64, 0, len(raw))
	for _, value := range raw {
		watermark, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "watermark must be an integer"})
			return
		}
		watermarks = append(watermarks, watermark)
	}

	s.withQueries(c, "stats_snapshot", func(ctx context.Context, q store.Queries) error {
		snap, err := q.Snapshot(ctx, watermarks...)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, snap)
		return nil
	})
}

// GET /api/v1/stats/active
func (s *Server) handleActive(c *gin.Context) {
	s.withQueries(c, "stats_active", func(ctx context.Context, q store.Queries) error {
		count, err := q.CountActiveAddresses(ctx)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, gin.H{"active_addresses": count})
		return nil
	})
}

// GET /api/v1/stats/average
func (s *Server) handleAverage(c *gin.Context) {
	s.withQueries(c, "stats_average", func(ctx context.Context, q store.Queries) error {
		avg, err := q.AverageBalance(ctx)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, gin.H{"average_balance": avg})
		return nil
	})
}

// GET /api/v1/stats/above/:watermark
func (s *Server) handleAbove(c *gin.Context) {
	watermark, err := strconv.ParseInt(c.Param("watermark"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "watermark must be an integer"})
		return
	}

	s.withQueries(c, "stats_above", func(ctx context.Context, q store.Queries) error {
		count, err := q.CountAddressesAbove(ctx, watermark)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, gin.H{"watermark": watermark, "addresses_above": count})
		return nil
	})
}

// GET /api/v1/stats/zero
func (s *Server) handleZero(c *gin.Context) {
	s.withQueries(c, "stats_zero", func(ctx context.Context, q store.Queries) error {
		count, err := q.CountZeroBalance(ctx)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, gin.H{"zero_balance": count})
		return nil
	})
}

// GET /api/v1/stats/count/:entity
func (s *Server) handleCount(c *gin.Context) {
	entity, err := domain.ParseEntity(c.Param("entity"))
	if err != nil {
		s.writeError(c, "stats_count", err)
		return
	}

	s.withQueries(c, "stats_count", func(ctx context.Context, q store.Queries) error {
		count, err := q.CountAll(ctx, entity)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, gin.H{"entity": entity.String(), "total_count": count})
		return nil
	})
}

// GET /api/v1/addresses/:address
func (s *Server) handleAddress(c *gin.Context) {
	if s.addresses == nil {
		s.writeError(c, "address_lookup", errors.New("address lookup is not configured"))
		return
	}

	addr, err := s.addresses.GetByAddress(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.writeError(c, "address_lookup", err)
		return
	}

	c.JSON(http.StatusOK, addr)
}

// GET /api/v1/transactions/:id
func (s *Server) handleTransaction(c *gin.Context) {
	if s.transactions == nil {
		s.writeError(c, "transaction_lookup", errors.New("transaction lookup is not configured"))
		return
	}

	tx, err := s.transactions.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "transaction_lookup", err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// withQueries runs fn inside a query scope bound to the request context and
// maps any failure onto an HTTP response.
func (s *Server) withQueries(c *gin.Context, event string, fn func(context.Context, store.Queries) error) {
	if s.scope == nil {
		s.writeError(c, event, errors.New("query scope is not configured"))
		return
	}

	if err := s.scope.Scope(c.Request.Context(), fn); err != nil {
		s.writeError(c, event, err)
	}
}

func (s *Server) writeError(c *gin.Context, event string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	s.logger.WithFields(logging.Fields{
		"event": event + "_error",
		"path":  c.Request.URL.Path,
	}).WithError(err).Error("request failed")

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
