package admin

import (
	"net/http"
	"testing"

	"certreg/internal/platform/logger"
	"certreg/pkg/testutil"
)

func TestRequireOpsToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("matching token passes", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/drain")
		req.Header.Set(HeaderOpsToken, "s3cret")
		rr := testutil.DoRequest(RequireOpsToken("s3cret", logger.Discard())(ok), req)
		testutil.AssertStatusOK(t, rr)
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/drain")
		req.Header.Set(HeaderOpsToken, "guess")
		rr := testutil.DoRequest(RequireOpsToken("s3cret", logger.Discard())(ok), req)
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthenticated")
	})

	t.Run("unset token rejects everything", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/drain")
		rr := testutil.DoRequest(RequireOpsToken("", logger.Discard())(ok), req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}
