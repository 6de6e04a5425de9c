package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"certreg/internal/platform/logger"
	"certreg/internal/registry/service"
	"certreg/internal/registry/store"
	"certreg/pkg/testutil"
)

// TestRegistryScenario drives the real service and in-memory store through
// the HTTP surface.
func TestRegistryScenario(t *testing.T) {
	testutil.Given(t, "a registry administered by the deployer", func(t *testing.T) {
		st := store.NewInMemory()
		require.NoError(t, st.Bootstrap(context.Background(), deployer))
		registry, err := service.New(st, service.WithLogger(logger.Discard()))
		require.NoError(t, err)

		r := chi.NewRouter()
		New(registry, logger.Discard(), tokenValidator{}).Register(r)

		testutil.When(t, "the deployer mints a certificate for wallet1", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/certificates",
				map[string]string{"recipient": wallet1.String(), "course": "Blockchain Basics", "grade": "A"})
			rr := testutil.DoRequest(r, testutil.WithBearer(req, deployer.String()))

			testutil.Then(t, "it is created with the first id", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
				testutil.AssertJSONContains(t, rr, "id", float64(0))
			})
		})

		testutil.When(t, "wallet1 transfers it to wallet2", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/certificates/0/transfer",
				map[string]string{"sender": wallet1.String(), "recipient": wallet2.String()})
			rr := testutil.DoRequest(r, testutil.WithBearer(req, wallet1.String()))

			testutil.Then(t, "wallet2 is the owner", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				owner := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/certificates/0/owner"))
				testutil.AssertJSONContains(t, owner, "owner", wallet2.String())
			})
		})

		testutil.When(t, "wallet1 tries to transfer it again", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/certificates/0/transfer",
				map[string]string{"sender": wallet1.String(), "recipient": wallet1.String()})
			rr := testutil.DoRequest(r, testutil.WithBearer(req, wallet1.String()))

			testutil.Then(t, "it is rejected as unauthorized", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "unauthorized")
				testutil.AssertRegistryCode(t, rr, 1)
			})
		})

		testutil.When(t, "the certificate is queried", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/certificates/0"))

			testutil.Then(t, "it keeps the minted course and issuer", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				resp := testutil.UnmarshalResponse[certificateResponse](t, rr)
				require.True(t, resp.Found)
				require.NotNil(t, resp.Certificate)
				require.Equal(t, "Blockchain Basics", resp.Course)
				require.Equal(t, deployer, resp.IssuedBy)
				require.Equal(t, wallet2, resp.Owner)
			})
		})

		testutil.When(t, "the total is queried", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/certificates/total"))

			testutil.Then(t, "one certificate exists", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "total", float64(1))
			})
		})
	})
}
