package httputil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pinstack/pinstack/pkg/hierarchy"
	"github.com/pinstack/pinstack/pkg/registry"
	"github.com/pinstack/pinstack/pkg/resolver"
	"github.com/pinstack/pinstack/pkg/revision"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", hierarchy.ErrMalformedPath), http.StatusBadRequest},
		{registry.ErrMalformedDistribution, http.StatusBadRequest},
		{resolver.ErrInvalidSearchMode, http.StatusBadRequest},
		{registry.ErrDuplicatePackage, http.StatusConflict},
		{registry.ErrPackageMismatch, http.StatusConflict},
		{registry.ErrDuplicateDependency, http.StatusConflict},
		{registry.ErrUnknownPackage, http.StatusNotFound},
		{registry.ErrUnknownPin, http.StatusNotFound},
		{revision.ErrUnknownRevision, http.StatusNotFound},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorStatus(tc.err), "error %v", tc.err)
	}
}

func TestWriteDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, registry.ErrPackageMismatch)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "does not match")
}
