package handlers

import "github.com/subleasehub/sublease-backend/internal/models"

// buildPaginationMeta assumes a full page means more rows may follow.
func buildPaginationMeta(skip, limit, returned int) models.PaginationMeta {
	return models.PaginationMeta{
		Skip:     skip,
		Limit:    limit,
		Returned: returned,
		HasMore:  limit > 0 && returned == limit,
	}
}
