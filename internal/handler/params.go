package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/walletlink/internal/errors"
	"github.com/openclaw/walletlink/internal/util"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(r *http.Request) PaginationParams {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}

	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}

// principalIDParam reads the {id} route parameter.
func principalIDParam(r *http.Request) (int64, error) {
	id, ok := util.ParsePrincipalID(chi.URLParam(r, "id"))
	if !ok {
		return 0, apperrors.InvalidInput("id", "must be a positive integer")
	}
	return id, nil
}
